package dss

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lrsd/internal/lrserr"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_DeviceLockRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device (id, family, serial, model, host) VALUES ('d1', 'tape', 'SER1', 'ULTRIUM-TD6', 'host-a')`)
	require.NoError(t, err)

	devs, err := s.GetDevices(ctx, DeviceFilter{Family: "tape"})
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, "d1", devs[0].ID)
	assert.Empty(t, devs[0].LockOwner)

	require.NoError(t, s.LockDevice(ctx, ByID{ID: "d1"}, "owner-a"))
	// re-locking by the same owner is a no-op success
	require.NoError(t, s.LockDevice(ctx, ByID{ID: "d1"}, "owner-a"))
	assert.ErrorIs(t, s.LockDevice(ctx, ByID{ID: "d1"}, "owner-b"), lrserr.ErrAgain)

	require.NoError(t, s.UnlockDevice(ctx, ByID{ID: "d1"}, "owner-a"))
	require.NoError(t, s.LockDevice(ctx, ByID{ID: "d1"}, "owner-b"))
}

func TestSQLiteStore_FindObjectMediumVersionZeroIsLatest(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.RegisterObject(ctx, "obj-1", "uuid-1", 1, ByID{Family: "tape", ID: "m1"}))
	require.NoError(t, s.RegisterObject(ctx, "obj-1", "uuid-1", 2, ByID{Family: "tape", ID: "m2"}))

	id, err := s.FindObjectMedium(ctx, "obj-1", "uuid-1", 0)
	require.NoError(t, err)
	assert.Equal(t, "m2", id.ID)

	id, err = s.FindObjectMedium(ctx, "obj-1", "uuid-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "m1", id.ID)
}

func TestSQLiteStore_FindObjectMediumAmbiguousOnDistinctUUIDs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.RegisterObject(ctx, "obj-1", "uuid-1", 1, ByID{Family: "tape", ID: "m1"}))
	require.NoError(t, s.RegisterObject(ctx, "obj-1", "uuid-2", 1, ByID{Family: "tape", ID: "m2"}))

	_, err := s.FindObjectMedium(ctx, "obj-1", "", 0)
	assert.ErrorIs(t, err, lrserr.ErrAmbiguous)
}
