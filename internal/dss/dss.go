// Package dss defines the metadata-store boundary the scheduler depends on:
// filtered device/medium queries, atomic per-row lock/unlock with an owner
// string, and medium update.
//
// The LRS is the only in-scope consumer; DSS itself is an external
// collaborator and is implemented here purely to give the
// scheduler something real to run against.
package dss

import "context"

// AdminStatus mirrors the administrative lock column shared by device and
// medium rows.
type AdminStatus string

const (
	AdminUnlocked AdminStatus = "unlocked"
	AdminLocked   AdminStatus = "locked"
)

// FSStatus is the filesystem status column of a medium row.
type FSStatus string

const (
	FSStatusBlank FSStatus = "blank"
	FSStatusEmpty FSStatus = "empty"
	FSStatusUsed  FSStatus = "used"
	FSStatusFull  FSStatus = "full"
)

// DeviceInfo is the DSS-row view of a usable local drive.
type DeviceInfo struct {
	ID          string
	Family      string
	Serial      string
	Model       string
	Host        string
	AdminStatus AdminStatus
	// LockOwner is empty when unlocked, otherwise the owner string of
	// whoever holds the device lock (us or another instance).
	LockOwner string
}

// MediaStats are the free-form statistics carried on a medium row.
type MediaStats struct {
	PhysSpcFree int64
	PhysSpcUsed int64
	LogicSpcUsed int64
	NumObjects  int64
}

// MediaInfo is the DSS-row view of a medium.
type MediaInfo struct {
	ID          string
	Family      string
	Model       string
	Tags        []string
	FSType      string
	FSLabel     string
	FSStatus    FSStatus
	AddrType    string
	AdminStatus AdminStatus
	Stats       MediaStats
	// LockOwner is empty when unlocked, otherwise the owner string of
	// whoever holds the medium lock (us or another instance).
	LockOwner string
}

// Clone returns a deep copy, safe for a caller to mutate without
// disturbing the cached original (used by the medium selector).
func (m *MediaInfo) Clone() *MediaInfo {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Tags = append([]string(nil), m.Tags...)
	return &cp
}

// DeviceFilter selects device rows for load_dev_state:
// this host, admin-unlocked, matching family.
type DeviceFilter struct {
	Host        string
	Family      string
	AdminStatus AdminStatus
}

// MediaFilter selects candidate media for the medium selector.
type MediaFilter struct {
	Family         string
	AdminStatus    AdminStatus
	MinFree        int64
	ExcludeFSState []FSStatus
	// Tags, when non-empty, requires the medium's tag set to be a superset
	// (each tag is an AND clause).
	Tags []string
}

// ID-based lookup, used to refresh a single medium or device row.
type ByID struct {
	Family string
	ID     string
}

// Store is the DSS boundary consumed by the scheduler.
type Store interface {
	GetDevices(ctx context.Context, f DeviceFilter) ([]DeviceInfo, error)
	GetDevice(ctx context.Context, id ByID) (*DeviceInfo, error)
	GetMedia(ctx context.Context, f MediaFilter) ([]MediaInfo, error)
	GetMedium(ctx context.Context, id ByID) (*MediaInfo, error)

	LockDevice(ctx context.Context, id ByID, owner string) error
	UnlockDevice(ctx context.Context, id ByID, owner string) error
	LockMedia(ctx context.Context, id ByID, owner string) error
	UnlockMedia(ctx context.Context, id ByID, owner string) error

	UpdateMedia(ctx context.Context, m MediaInfo) error

	// FindObjectMedium resolves an object to the medium holding it, for the
	// locate auxiliary operation. At least one of oid,
	// uuid must be non-empty. version == 0 means "latest".
	FindObjectMedium(ctx context.Context, oid, uuid string, version int) (ByID, error)
}
