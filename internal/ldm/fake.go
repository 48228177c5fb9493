package ldm

import (
	"context"
	"fmt"
	"sync"

	"lrsd/internal/lrserr"
)

// FakeLibrary is an in-memory LibraryAdapter for scheduler tests: no real
// autochanger, just drive-occupancy bookkeeping.
type FakeLibrary struct {
	mu     sync.Mutex
	loaded map[string]string // devicePath -> mediumID
	// Rejected, when non-empty, marks a devicePath for which Load fails
	// with lrserr.ErrBusy, simulating a library that refuses a
	// drive-to-drive move.
	Rejected map[string]bool
}

// NewFakeLibrary builds an empty fake autochanger.
func NewFakeLibrary() *FakeLibrary {
	return &FakeLibrary{loaded: map[string]string{}, Rejected: map[string]bool{}}
}

func (l *FakeLibrary) Load(ctx context.Context, devicePath, mediumID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Rejected[devicePath] {
		return fmt.Errorf("ldm/fake: library rejects drive-to-drive move for %q: %w", devicePath, lrserr.ErrBusy)
	}
	if existing, ok := l.loaded[devicePath]; ok {
		return fmt.Errorf("ldm/fake: drive %q already holds %q", devicePath, existing)
	}
	l.loaded[devicePath] = mediumID
	return nil
}

func (l *FakeLibrary) Unload(ctx context.Context, devicePath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.loaded[devicePath]; !ok {
		return fmt.Errorf("ldm/fake: drive %q is already empty", devicePath)
	}
	delete(l.loaded, devicePath)
	return nil
}

// LoadedMedium reports what medium is currently loaded in devicePath, if
// any, for test assertions.
func (l *FakeLibrary) LoadedMedium(devicePath string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.loaded[devicePath]
	return m, ok
}

// FakeDevice is an in-memory DeviceAdapter that reports whatever the
// paired FakeLibrary says is loaded.
type FakeDevice struct {
	lib *FakeLibrary
}

// NewFakeDevice builds a DeviceAdapter sharing a FakeLibrary's state.
func NewFakeDevice(lib *FakeLibrary) *FakeDevice {
	return &FakeDevice{lib: lib}
}

func (d *FakeDevice) Query(ctx context.Context, devicePath string) (DeviceState, error) {
	state := DeviceState{Serial: devicePath, Model: "fake"}
	if vol, ok := d.lib.LoadedMedium(devicePath); ok {
		state.LoadedVol = vol
	}
	return state, nil
}

// FakeFS is an in-memory FSAdapter: "mounting" just records the mount
// point is open for a device, formatting marks it freshly writable.
type FakeFS struct {
	mu           sync.Mutex
	mounted      map[string]string // mountPoint -> devicePath
	readOnly     map[string]bool   // mountPoint -> forced read-only, for testing the retry path
	readOnlyOnce map[string]bool   // mountPoint -> forced read-only for exactly the next IsWritable call
	free         map[string]int64
	used         map[string]int64
}

// NewFakeFS builds an empty fake filesystem adapter.
func NewFakeFS() *FakeFS {
	return &FakeFS{
		mounted:      map[string]string{},
		readOnly:     map[string]bool{},
		readOnlyOnce: map[string]bool{},
		free:         map[string]int64{},
		used:         map[string]int64{},
	}
}

func (f *FakeFS) MountedAt(ctx context.Context, devicePath, mountPoint string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dp, ok := f.mounted[mountPoint]
	return ok && dp == devicePath, nil
}

func (f *FakeFS) Mount(ctx context.Context, devicePath, mountPoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mounted[mountPoint] = devicePath
	return nil
}

func (f *FakeFS) Unmount(ctx context.Context, mountPoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.mounted, mountPoint)
	return nil
}

func (f *FakeFS) IsWritable(ctx context.Context, mountPoint string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readOnlyOnce[mountPoint] {
		delete(f.readOnlyOnce, mountPoint)
		return false, nil
	}
	return !f.readOnly[mountPoint], nil
}

func (f *FakeFS) Format(ctx context.Context, devicePath, mountPoint, label string) error {
	f.mu.Lock()
	f.mounted[mountPoint] = devicePath
	f.mu.Unlock()
	return nil
}

func (f *FakeFS) DF(ctx context.Context, mountPoint string) (free, used int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.free[mountPoint], f.used[mountPoint], nil
}

// SetReadOnly forces IsWritable to report false for mountPoint, until
// ClearReadOnly is called - used to exercise the bounded read-only-mount
// retry loop.
func (f *FakeFS) SetReadOnly(mountPoint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readOnly[mountPoint] = true
}

// ClearReadOnly undoes SetReadOnly.
func (f *FakeFS) ClearReadOnly(mountPoint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.readOnly, mountPoint)
}

// SetReadOnlyOnce forces exactly the next IsWritable(mountPoint) call to
// report false, then reverts to whatever SetReadOnly/ClearReadOnly last
// set - modeling a mount that comes up read-only once (e.g. a transient
// library condition) but succeeds on a fresh mount.
func (f *FakeFS) SetReadOnlyOnce(mountPoint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readOnlyOnce[mountPoint] = true
}

// SetSpace sets the free/used byte counts DF reports for mountPoint.
func (f *FakeFS) SetSpace(mountPoint string, free, used int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.free[mountPoint] = free
	f.used[mountPoint] = used
}

// FakeIO is an in-memory IOAdapter: Flush always succeeds unless Fail has
// been set for the given mount point, simulating a fatal medium error.
type FakeIO struct {
	mu   sync.Mutex
	fail map[string]error
}

// NewFakeIO builds an IOAdapter that succeeds by default.
func NewFakeIO() *FakeIO {
	return &FakeIO{fail: map[string]error{}}
}

func (io *FakeIO) Flush(ctx context.Context, mountPoint string) error {
	io.mu.Lock()
	defer io.mu.Unlock()
	if err, ok := io.fail[mountPoint]; ok {
		return err
	}
	return nil
}

// SetFail makes Flush fail for mountPoint with err.
func (io *FakeIO) SetFail(mountPoint string, err error) {
	io.mu.Lock()
	defer io.mu.Unlock()
	io.fail[mountPoint] = err
}
