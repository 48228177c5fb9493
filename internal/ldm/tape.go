package ldm

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kbj/mtx"

	"lrsd/internal/lrserr"
)

// shellChanger is the subset of exec behavior mtx.NewChanger needs.
type shellChanger struct {
	device string
}

func (c *shellChanger) Do(args ...string) ([]byte, error) {
	full := append([]string{"-f", c.device}, args...)
	return exec.Command("mtx", full...).Output()
}

// TapeLibrary is the LibraryAdapter for the tape family, driving a real
// autochanger through github.com/kbj/mtx.
type TapeLibrary struct {
	changer    *mtx.Changer
	driveSlots map[string]int // devicePath -> mtx drive slot number
}

// NewTapeLibrary opens the autochanger at libraryDevice. driveSlots maps
// each configured drive's device path to its mtx drive slot number.
func NewTapeLibrary(libraryDevice string, driveSlots map[string]int) *TapeLibrary {
	return &TapeLibrary{
		changer:    mtx.NewChanger(&shellChanger{device: libraryDevice}),
		driveSlots: driveSlots,
	}
}

func (l *TapeLibrary) driveSlot(devicePath string) (int, error) {
	slot, ok := l.driveSlots[devicePath]
	if !ok {
		return 0, fmt.Errorf("ldm/tape: no mtx drive slot configured for %q", devicePath)
	}
	return slot, nil
}

// findMediumSlot scans storage slots and drives for the cartridge carrying
// mediumID, returning its current element number and whether that element
// is a drive rather than a storage slot. mtx's load command only accepts a
// storage-slot source, so a caller must treat the two cases differently.
func (l *TapeLibrary) findMediumSlot(mediumID string) (num int, inDrive bool, err error) {
	slots, err := l.changer.Slots()
	if err != nil {
		return 0, false, fmt.Errorf("ldm/tape: list slots: %w", err)
	}
	for _, s := range slots {
		if s.Vol != nil && s.Vol.Serial == mediumID {
			return s.Num, false, nil
		}
	}
	drives, err := l.changer.Drives()
	if err != nil {
		return 0, false, fmt.Errorf("ldm/tape: list drives: %w", err)
	}
	for _, d := range drives {
		if d.Vol != nil && d.Vol.Serial == mediumID {
			return d.Num, true, nil
		}
	}
	return 0, false, fmt.Errorf("ldm/tape: medium %q not found in library", mediumID)
}

func (l *TapeLibrary) Load(ctx context.Context, devicePath, mediumID string) error {
	driveSlot, err := l.driveSlot(devicePath)
	if err != nil {
		return err
	}
	mediumSlot, inDrive, err := l.findMediumSlot(mediumID)
	if err != nil {
		return err
	}
	if inDrive {
		// Already sitting in a drive: mtx load only moves a cartridge out
		// of a storage slot, so a drive-to-drive move is not a load this
		// changer can perform. The caller retries against another medium
		// or drive rather than treating this as fatal.
		return fmt.Errorf("ldm/tape: %q is already in drive slot %d, not a storage slot: %w", mediumID, mediumSlot, lrserr.ErrBusy)
	}
	if err := l.changer.Load(mediumSlot, driveSlot); err != nil {
		return fmt.Errorf("ldm/tape: load %q into drive %q: %w", mediumID, devicePath, err)
	}
	return nil
}

func (l *TapeLibrary) Unload(ctx context.Context, devicePath string) error {
	driveSlot, err := l.driveSlot(devicePath)
	if err != nil {
		return err
	}
	drives, err := l.changer.Drives()
	if err != nil {
		return fmt.Errorf("ldm/tape: list drives: %w", err)
	}
	var homeSlot int
	found := false
	for _, d := range drives {
		if d.Num == driveSlot && d.Vol != nil {
			homeSlot = d.Num
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("ldm/tape: drive %q is already empty", devicePath)
	}
	if err := l.changer.Unload(homeSlot, driveSlot); err != nil {
		return fmt.Errorf("ldm/tape: unload drive %q: %w", devicePath, err)
	}
	return nil
}

// TapeDevice is the DeviceAdapter for the tape family, reporting whatever
// cartridge the autochanger currently sees loaded in a drive.
type TapeDevice struct {
	changer *TapeLibrary
}

// NewTapeDevice builds a DeviceAdapter sharing the given library's changer
// state.
func NewTapeDevice(lib *TapeLibrary) *TapeDevice {
	return &TapeDevice{changer: lib}
}

func (d *TapeDevice) Query(ctx context.Context, devicePath string) (DeviceState, error) {
	driveSlot, err := d.changer.driveSlot(devicePath)
	if err != nil {
		return DeviceState{}, err
	}
	drives, err := d.changer.changer.Drives()
	if err != nil {
		return DeviceState{}, fmt.Errorf("ldm/tape: list drives: %w", err)
	}
	for _, drv := range drives {
		if drv.Num != driveSlot {
			continue
		}
		state := DeviceState{}
		if drv.Vol != nil {
			state.LoadedVol = drv.Vol.Serial
		}
		return state, nil
	}
	return DeviceState{}, fmt.Errorf("ldm/tape: drive %q not reported by changer", devicePath)
}

// TapeFS is the FSAdapter for the tape family: mounts and formats LTFS
// filesystems by shelling out to ltfs/mkltfs/mount/umount.
type TapeFS struct{}

// NewTapeFS builds the LTFS-backed FSAdapter.
func NewTapeFS() *TapeFS { return &TapeFS{} }

func (f *TapeFS) MountedAt(ctx context.Context, devicePath, mountPoint string) (bool, error) {
	_, _, err := statfsDF(mountPoint)
	return err == nil, nil
}

func (f *TapeFS) Mount(ctx context.Context, devicePath, mountPoint string) error {
	_ = f.Unmount(ctx, mountPoint) // best-effort clear stale mount first
	devname := fmt.Sprintf("devname=%s", devicePath)
	if out, err := exec.CommandContext(ctx, "ltfs", "-o", devname, mountPoint).CombinedOutput(); err != nil {
		return fmt.Errorf("ldm/tape: mount %q at %q: %w (%s)", devicePath, mountPoint, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (f *TapeFS) Unmount(ctx context.Context, mountPoint string) error {
	// Unmounting an already-unmounted path is routine; errors are not
	// reported.
	exec.CommandContext(ctx, "umount", mountPoint).Run()
	return nil
}

func (f *TapeFS) IsWritable(ctx context.Context, mountPoint string) (bool, error) {
	return statfsWritable(mountPoint)
}

func (f *TapeFS) Format(ctx context.Context, devicePath, mountPoint, label string) error {
	if out, err := exec.CommandContext(ctx, "mkltfs", "-d", devicePath, "-n", label).CombinedOutput(); err != nil {
		return fmt.Errorf("ldm/tape: format %q: %w (%s)", devicePath, err, strings.TrimSpace(string(out)))
	}
	return f.Mount(ctx, devicePath, mountPoint)
}

func (f *TapeFS) DF(ctx context.Context, mountPoint string) (free, used int64, err error) {
	return statfsDF(mountPoint)
}
