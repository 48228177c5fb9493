package ldm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// dirLabelMarker is the file DirFS.Format writes at devicePath's root to
// record which medium formatted it; DirLibrary.Load reads the same file to
// confirm it's loading the cartridge it thinks it is.
const dirLabelMarker = ".lrs-label"

// DirLibrary is the LibraryAdapter for the dir family: every directory
// root is always "already in its own drive", so nothing is moved: Load only
// checks the label DirFS.Format left behind, and Unload does nothing.
type DirLibrary struct{}

// NewDirLibrary builds the no-op LibraryAdapter for the dir family.
func NewDirLibrary() *DirLibrary { return &DirLibrary{} }

func (l *DirLibrary) Load(ctx context.Context, devicePath, mediumID string) error {
	label, err := os.ReadFile(filepath.Join(devicePath, dirLabelMarker))
	if err != nil {
		return fmt.Errorf("ldm/dir: medium %q not found at %q: %w", mediumID, devicePath, err)
	}
	if strings.TrimSpace(string(label)) != mediumID {
		return fmt.Errorf("ldm/dir: device %q holds medium %q, not %q", devicePath, strings.TrimSpace(string(label)), mediumID)
	}
	return nil
}

func (l *DirLibrary) Unload(ctx context.Context, devicePath string) error {
	return nil
}

// DirDevice is the DeviceAdapter for the dir family: a device is simply a
// root directory, always present, never reporting a loaded volume since
// dir-family "drives" don't hold removable media.
type DirDevice struct{}

// NewDirDevice builds the DeviceAdapter for the dir family.
func NewDirDevice() *DirDevice { return &DirDevice{} }

func (d *DirDevice) Query(ctx context.Context, devicePath string) (DeviceState, error) {
	if _, err := os.Stat(devicePath); err != nil {
		return DeviceState{}, fmt.Errorf("ldm/dir: device path %q: %w", devicePath, err)
	}
	return DeviceState{Serial: devicePath, Model: "dir"}, nil
}

// DirFS is the FSAdapter for the dir family: "mount" replaces the mount
// point with a symlink to the device directory, "format" creates that
// directory, writes its label marker, and mounts it.
type DirFS struct{}

// NewDirFS builds the FSAdapter for the dir family.
func NewDirFS() *DirFS { return &DirFS{} }

func (f *DirFS) MountedAt(ctx context.Context, devicePath, mountPoint string) (bool, error) {
	target, err := os.Readlink(mountPoint)
	if err != nil {
		return false, nil
	}
	return target == devicePath, nil
}

func (f *DirFS) Mount(ctx context.Context, devicePath, mountPoint string) error {
	if _, err := os.Stat(devicePath); err != nil {
		return fmt.Errorf("ldm/dir: mount source %q: %w", devicePath, err)
	}
	if err := os.RemoveAll(mountPoint); err != nil {
		return fmt.Errorf("ldm/dir: clear mount point %q: %w", mountPoint, err)
	}
	if err := os.Symlink(devicePath, mountPoint); err != nil {
		return fmt.Errorf("ldm/dir: bind %q at %q: %w", devicePath, mountPoint, err)
	}
	return nil
}

func (f *DirFS) Unmount(ctx context.Context, mountPoint string) error {
	if err := os.Remove(mountPoint); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ldm/dir: unmount %q: %w", mountPoint, err)
	}
	return nil
}

func (f *DirFS) IsWritable(ctx context.Context, mountPoint string) (bool, error) {
	probe := filepath.Join(mountPoint, ".lrs-write-probe")
	fh, err := os.Create(probe)
	if err != nil {
		return false, nil
	}
	fh.Close()
	os.Remove(probe)
	return true, nil
}

func (f *DirFS) Format(ctx context.Context, devicePath, mountPoint, label string) error {
	if err := os.MkdirAll(devicePath, 0o755); err != nil {
		return fmt.Errorf("ldm/dir: format %q: %w", devicePath, err)
	}
	marker := filepath.Join(devicePath, dirLabelMarker)
	if err := os.WriteFile(marker, []byte(label), 0o644); err != nil {
		return fmt.Errorf("ldm/dir: write label for %q: %w", devicePath, err)
	}
	return f.Mount(ctx, devicePath, mountPoint)
}

func (f *DirFS) DF(ctx context.Context, mountPoint string) (free, used int64, err error) {
	return statfsDF(mountPoint)
}
