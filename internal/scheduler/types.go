// Package scheduler implements the Local Resource Scheduler: the device
// cache, medium selector glue, device picker, mount/load/unload state
// machine, drive-freeing planner, and orchestrator that together arbitrate
// a host's tape drives, autochanger, and on-disk directories.
package scheduler

import (
	"lrsd/internal/dss"
)

// OpStatus is a device's operational state.
type OpStatus int

const (
	StatusUnspec OpStatus = iota
	StatusEmpty
	StatusLoaded
	StatusMounted
	StatusFailed
)

func (s OpStatus) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusLoaded:
		return "loaded"
	case StatusMounted:
		return "mounted"
	case StatusFailed:
		return "failed"
	default:
		return "unspec"
	}
}

// Device is the in-memory device descriptor the cache holds one of per
// usable local drive.
type Device struct {
	// Identity, from DSS.
	Family      string
	Serial      string
	Model       string
	Host        string
	AdminStatus dss.AdminStatus

	// System view.
	Path      string // resolved OS device path
	MountPath string // non-empty only when Status == StatusMounted

	// Loaded medium, moved in on load, moved out on unload. nil when the
	// drive is empty.
	Medium *dss.MediaInfo

	Status OpStatus

	// LockedLocal is true iff this scheduler instance currently holds the
	// DSS device lock for this row.
	LockedLocal bool
}

// Empty reports whether the device currently holds no medium, matching
// the invariant that empty ⇒ no medium and no mount path.
func (d *Device) Empty() bool {
	return d.Status == StatusEmpty && d.Medium == nil && d.MountPath == ""
}

// Intent is the externally visible handle returned by *_prepare, alive
// until ResourceRelease. ID is a ULID suitable for correlating log lines
// and metrics across the lifetime of one request.
type Intent struct {
	ID         string
	MountPath  string
	MediumID   string
	Family     string
	FSType     string
	AddrType   string
	ExtentSize int64

	device *Device // back-reference; not exported, lifetime owned by the scheduler
}
