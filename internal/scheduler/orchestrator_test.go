package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lrsd/internal/config"
	"lrsd/internal/dss"
	"lrsd/internal/ldm"
	"lrsd/internal/lock"
	"lrsd/internal/lrserr"
)

const testHost = "h1"

// harness bundles a Scheduler with the fakes backing it, for scenario tests
// that need to drive the fakes directly (pre-loading a drive, forcing a
// read-only mount, rejecting a drive-to-drive move).
type harness struct {
	sched *Scheduler
	store *dss.Fake
	lib   *ldm.FakeLibrary
	fs    *ldm.FakeFS
	io    *ldm.FakeIO
	cfg   *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.LRS.DefaultFamily = "tape"
	cfg.LRS.MountPrefix = "/mnt/lrs-"

	store := dss.NewFake()
	lib := ldm.NewFakeLibrary()
	fs := ldm.NewFakeFS()
	io := ldm.NewFakeIO()
	adapters := ldm.Adapters{
		Device:  ldm.NewFakeDevice(lib),
		Library: lib,
		FS:      fs,
		IO:      io,
	}

	sched := New(store, adapters, cfg, testHost, 1)
	return &harness{sched: sched, store: store, lib: lib, fs: fs, io: io, cfg: cfg}
}

func (h *harness) addDevice(id string) {
	// Model must match what FakeDevice.Query reports ("fake"), or cache
	// refresh treats the mismatch as a DSS/OS disagreement and fails the
	// device.
	h.store.PutDevice(dss.DeviceInfo{
		ID: id, Family: "tape", Serial: id, Model: "fake", Host: testHost, AdminStatus: dss.AdminUnlocked,
	})
}

func (h *harness) addMedium(id string, free int64, status dss.FSStatus, tags ...string) {
	h.store.PutMedium(dss.MediaInfo{
		ID: id, Family: "tape", FSStatus: status, Tags: tags, AdminStatus: dss.AdminUnlocked,
		Stats: dss.MediaStats{PhysSpcFree: free},
	})
}

func (h *harness) init(t *testing.T) {
	t.Helper()
	require.NoError(t, h.sched.Init(context.Background()))
}

func TestWritePrepare_ColdPUT(t *testing.T) {
	h := newHarness(t)
	h.addDevice("d0")
	h.addMedium("T0", 100<<30, dss.FSStatusEmpty)
	h.init(t)

	intent, err := h.sched.WritePrepare(context.Background(), 1<<30, nil)
	require.NoError(t, err)

	assert.Equal(t, "T0", intent.MediumID)
	assert.Equal(t, "/mnt/lrs-d0", intent.MountPath)
	assert.Equal(t, h.sched.Self(), h.store.MediumLockOwner("T0"))
	assert.Equal(t, h.sched.Self(), h.store.DeviceLockOwner("d0"))
	m, err := h.store.GetMedium(context.Background(), dss.ByID{Family: "tape", ID: "T0"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, m.Stats.PhysSpcFree, int64(1<<30))
}

func TestWritePrepare_MustEvict(t *testing.T) {
	h := newHarness(t)
	h.addDevice("d0")
	h.addMedium("T0", 10<<30, dss.FSStatusUsed)
	h.addMedium("T1", 60<<30, dss.FSStatusUsed)

	// d0 starts out already mounted with T0.
	require.NoError(t, h.lib.Load(context.Background(), "d0", "T0"))
	require.NoError(t, h.fs.Mount(context.Background(), "d0", "/mnt/lrs-d0"))
	h.fs.SetSpace("/mnt/lrs-d0", 10<<30, 0)
	h.init(t)

	intent, err := h.sched.WritePrepare(context.Background(), 50<<30, nil)
	require.NoError(t, err)

	assert.Equal(t, "T1", intent.MediumID)
	assert.Equal(t, "/mnt/lrs-d0", intent.MountPath)
	loaded, ok := h.lib.LoadedMedium("d0")
	require.True(t, ok)
	assert.Equal(t, "T1", loaded)
}

func TestWritePrepare_TagMismatchSelectsMatchingMedium(t *testing.T) {
	h := newHarness(t)
	h.addDevice("d0")
	h.addMedium("M_A", 50<<30, dss.FSStatusUsed, "fast")
	h.addMedium("M_B", 50<<30, dss.FSStatusUsed, "slow")
	h.init(t)

	intent, err := h.sched.WritePrepare(context.Background(), 1<<30, []string{"fast"})
	require.NoError(t, err)
	assert.Equal(t, "M_A", intent.MediumID)
}

func TestWritePrepare_ReadOnlyMountRecovers(t *testing.T) {
	h := newHarness(t)
	h.addDevice("d0")
	h.addMedium("T0", 60<<30, dss.FSStatusUsed)
	h.addMedium("T1", 100<<30, dss.FSStatusUsed)
	h.init(t)

	// The first mount this drive picks up comes back read-only exactly once.
	h.fs.SetReadOnlyOnce("/mnt/lrs-d0")

	intent, err := h.sched.WritePrepare(context.Background(), 50<<30, nil)
	require.NoError(t, err)
	assert.Equal(t, "T1", intent.MediumID)

	full, err := h.store.GetMedium(context.Background(), dss.ByID{Family: "tape", ID: "T0"})
	require.NoError(t, err)
	assert.Equal(t, dss.FSStatusFull, full.FSStatus)
}

func TestWritePrepare_LibraryRejectsDriveToDriveMoveReturnsAgain(t *testing.T) {
	h := newHarness(t)
	h.addDevice("d0")
	h.addMedium("T0", 50<<30, dss.FSStatusUsed)
	h.init(t)

	h.lib.Rejected["d0"] = true

	_, err := h.sched.WritePrepare(context.Background(), 1<<30, nil)
	assert.ErrorIs(t, err, lrserr.ErrAgain)
}

func TestFormat_ThenWritePrepareRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.addDevice("d0")
	h.addMedium("T0", 0, dss.FSStatusBlank)
	h.init(t)

	require.NoError(t, h.sched.Format(context.Background(), "T0", "posix"))

	m, err := h.store.GetMedium(context.Background(), dss.ByID{Family: "tape", ID: "T0"})
	require.NoError(t, err)
	assert.Equal(t, dss.FSStatusEmpty, m.FSStatus)
	assert.Equal(t, "posix", m.FSType)

	// Give the reformatted medium some free space, as a real mkfs would.
	m.Stats.PhysSpcFree = 80 << 30
	require.NoError(t, h.store.UpdateMedia(context.Background(), *m))

	intent, err := h.sched.WritePrepare(context.Background(), 1<<30, nil)
	require.NoError(t, err)
	assert.Equal(t, "T0", intent.MediumID)
}

func TestIOComplete_FatalErrorMarksMediumFullAndDeviceFailed(t *testing.T) {
	h := newHarness(t)
	h.addDevice("d0")
	h.addMedium("T0", 50<<30, dss.FSStatusEmpty)
	h.init(t)

	intent, err := h.sched.WritePrepare(context.Background(), 1<<30, nil)
	require.NoError(t, err)

	err = h.sched.IOComplete(context.Background(), intent, 0, 0, lrserr.ErrIOFatal)
	assert.ErrorIs(t, err, lrserr.ErrIOFatal)
	assert.Equal(t, StatusFailed, intent.device.Status)

	m, err := h.store.GetMedium(context.Background(), dss.ByID{Family: "tape", ID: "T0"})
	require.NoError(t, err)
	assert.Equal(t, dss.FSStatusFull, m.FSStatus)
}

func TestResourceRelease_ClearsIntentAndUnlocksDevice(t *testing.T) {
	h := newHarness(t)
	h.addDevice("d0")
	h.addMedium("T0", 50<<30, dss.FSStatusEmpty)
	h.init(t)

	intent, err := h.sched.WritePrepare(context.Background(), 1<<30, nil)
	require.NoError(t, err)

	h.sched.ResourceRelease(context.Background(), intent)
	assert.Empty(t, intent.MountPath)
	assert.Equal(t, "", h.store.DeviceLockOwner("d0"))
}

func TestLocate_ReportsHoldingHost(t *testing.T) {
	h := newHarness(t)
	h.addDevice("d0")
	h.addMedium("T0", 50<<30, dss.FSStatusEmpty)
	h.init(t)

	intent, err := h.sched.WritePrepare(context.Background(), 1<<30, nil)
	require.NoError(t, err)
	h.store.PutObject("obj1", "uuid1", 1, dss.ByID{Family: "tape", ID: intent.MediumID})

	host, err := h.sched.Locate(context.Background(), "obj1", "uuid1", 1)
	require.NoError(t, err)
	assert.Equal(t, lock.Host(h.sched.Self()), host)
}

func TestLocate_UnheldMediumReturnsAgain(t *testing.T) {
	h := newHarness(t)
	h.addMedium("T0", 50<<30, dss.FSStatusEmpty)
	h.init(t)
	h.store.PutObject("obj1", "uuid1", 1, dss.ByID{Family: "tape", ID: "T0"})

	_, err := h.sched.Locate(context.Background(), "obj1", "uuid1", 1)
	assert.ErrorIs(t, err, lrserr.ErrAgain)
}
