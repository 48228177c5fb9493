// Package ldm is the local device manager: family-specific adapters that
// turn the scheduler's intent into actual hardware or filesystem actions.
package ldm

import (
	"context"
	"fmt"
)

// DeviceState is what a DeviceAdapter reports about the physical/logical
// device behind a configured path.
type DeviceState struct {
	Serial    string
	Model     string
	LoadedVol string // cartridge/volume serial currently in the drive, "" if empty
}

// DeviceAdapter queries a configured device path for its hardware identity
// and current load state.
type DeviceAdapter interface {
	Query(ctx context.Context, devicePath string) (DeviceState, error)
}

// LibraryAdapter drives the autochanger: load a medium into a drive, unload
// a drive back to its home slot.
type LibraryAdapter interface {
	// Load moves mediumID into the drive at devicePath. Returns
	// lrserr.ErrBusy if the library rejects a direct drive-to-drive move.
	Load(ctx context.Context, devicePath, mediumID string) error
	// Unload removes whatever medium is in the drive at devicePath back to
	// its home slot.
	Unload(ctx context.Context, devicePath string) error
}

// FSAdapter mounts, unmounts, and formats the filesystem on a loaded
// medium.
type FSAdapter interface {
	// MountedAt reports the mount point currently bound to devicePath, if
	// the cache's configured mount path is already live.
	MountedAt(ctx context.Context, devicePath, mountPoint string) (mounted bool, err error)
	Mount(ctx context.Context, devicePath, mountPoint string) error
	Unmount(ctx context.Context, mountPoint string) error
	// IsWritable reports whether the filesystem at mountPoint currently
	// accepts writes.
	IsWritable(ctx context.Context, mountPoint string) (bool, error)
	// Format lays down a fresh, empty, writable filesystem labeled label.
	Format(ctx context.Context, devicePath, mountPoint, label string) error
	// DF reports free/used bytes of the mounted filesystem.
	DF(ctx context.Context, mountPoint string) (free, used int64, err error)
}

// IOAdapter flushes pending writes to the medium.
type IOAdapter interface {
	Flush(ctx context.Context, mountPoint string) error
}

// Adapters bundles one family's full adapter set.
type Adapters struct {
	Device  DeviceAdapter
	Library LibraryAdapter
	FS      FSAdapter
	IO      IOAdapter
}

// Registry resolves a device family name to its adapter set.
type Registry struct {
	families map[string]Adapters
}

// NewRegistry builds an empty registry; callers Register each family they
// support.
func NewRegistry() *Registry {
	return &Registry{families: map[string]Adapters{}}
}

// Register installs the adapter set for a family, overwriting any previous
// registration.
func (r *Registry) Register(family string, a Adapters) {
	r.families[family] = a
}

// ForFamily resolves a family name to its adapter set.
func (r *Registry) ForFamily(family string) (Adapters, error) {
	a, ok := r.families[family]
	if !ok {
		return Adapters{}, fmt.Errorf("ldm: no adapters registered for family %q", family)
	}
	return a, nil
}
