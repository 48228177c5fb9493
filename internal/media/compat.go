// Package media implements the two collaborators the orchestrator asks
// before touching hardware: the compatibility oracle and
// the medium selector.
package media

import "lrsd/internal/config"

// DriveCompat answers whether a tape model and a drive model are
// write-compatible, per the configured tape_type/drive_type tables.
type DriveCompat struct {
	cfg *config.Config
}

// NewDriveCompat builds a compatibility oracle over the given configuration.
func NewDriveCompat(cfg *config.Config) *DriveCompat {
	return &DriveCompat{cfg: cfg}
}

// Compatible reports whether a drive of driveModel can read/write a medium
// of mediumModel in the given family. Non-tape families have no physical
// read/write compatibility constraint: any drive of that family is
// compatible. A tape model with no configured tape_type
// section, or a drive type with no configured drive_type section, is
// treated as incompatible rather than an error: an operator simply hasn't
// enumerated that pairing yet.
func (c *DriveCompat) Compatible(family, mediumModel, driveModel string) bool {
	if family != "tape" {
		return true
	}
	rwDriveTypes, ok := c.cfg.RWDriveTypesForTape(mediumModel)
	if !ok {
		return false
	}
	for _, driveType := range rwDriveTypes {
		models, ok := c.cfg.DriveModelsByType(driveType)
		if !ok {
			continue
		}
		if searchInList(models, driveModel) {
			return true
		}
	}
	return false
}

func searchInList(list []string, item string) bool {
	for _, candidate := range list {
		if candidate == item {
			return true
		}
	}
	return false
}
