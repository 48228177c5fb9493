package media

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lrsd/internal/config"
	"lrsd/internal/dss"
	"lrsd/internal/lrserr"
)

// fakeStore is a minimal in-memory dss.Store sufficient for selector tests.
type fakeStore struct {
	media map[string]*dss.MediaInfo
}

func newFakeStore(media ...dss.MediaInfo) *fakeStore {
	fs := &fakeStore{media: map[string]*dss.MediaInfo{}}
	for i := range media {
		m := media[i]
		fs.media[m.ID] = &m
	}
	return fs
}

func (f *fakeStore) GetDevices(ctx context.Context, flt dss.DeviceFilter) ([]dss.DeviceInfo, error) {
	return nil, nil
}
func (f *fakeStore) GetDevice(ctx context.Context, id dss.ByID) (*dss.DeviceInfo, error) {
	return nil, lrserr.ErrNotFound
}

func (f *fakeStore) GetMedia(ctx context.Context, flt dss.MediaFilter) ([]dss.MediaInfo, error) {
	var out []dss.MediaInfo
	for _, m := range f.media {
		if m.Family != flt.Family {
			continue
		}
		if m.Stats.PhysSpcFree < flt.MinFree {
			continue
		}
		excluded := false
		for _, st := range flt.ExcludeFSState {
			if m.FSStatus == st {
				excluded = true
			}
		}
		if excluded {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeStore) GetMedium(ctx context.Context, id dss.ByID) (*dss.MediaInfo, error) {
	m, ok := f.media[id.ID]
	if !ok {
		return nil, lrserr.ErrNotFound
	}
	return m.Clone(), nil
}

func (f *fakeStore) LockDevice(ctx context.Context, id dss.ByID, owner string) error   { return nil }
func (f *fakeStore) UnlockDevice(ctx context.Context, id dss.ByID, owner string) error { return nil }

func (f *fakeStore) LockMedia(ctx context.Context, id dss.ByID, owner string) error {
	m, ok := f.media[id.ID]
	if !ok {
		return lrserr.ErrNotFound
	}
	if m.LockOwner != "" && m.LockOwner != owner {
		return lrserr.ErrAgain
	}
	m.LockOwner = owner
	return nil
}

func (f *fakeStore) UnlockMedia(ctx context.Context, id dss.ByID, owner string) error {
	m, ok := f.media[id.ID]
	if !ok {
		return lrserr.ErrNotFound
	}
	m.LockOwner = ""
	return nil
}

func (f *fakeStore) UpdateMedia(ctx context.Context, m dss.MediaInfo) error {
	f.media[m.ID] = &m
	return nil
}

func (f *fakeStore) FindObjectMedium(ctx context.Context, oid, uuid string, version int) (dss.ByID, error) {
	return dss.ByID{}, lrserr.ErrNotFound
}

func bestFitConfig() *config.Config {
	c := config.DefaultConfig()
	c.LRS.Policy = config.PolicyBestFit
	return c
}

func TestSelector_PicksTightestFit(t *testing.T) {
	store := newFakeStore(
		dss.MediaInfo{ID: "tape1", Family: "tape", FSStatus: dss.FSStatusUsed, Stats: dss.MediaStats{PhysSpcFree: 500}},
		dss.MediaInfo{ID: "tape2", Family: "tape", FSStatus: dss.FSStatusUsed, Stats: dss.MediaStats{PhysSpcFree: 200}},
		dss.MediaInfo{ID: "tape3", Family: "tape", FSStatus: dss.FSStatusUsed, Stats: dss.MediaStats{PhysSpcFree: 1000}},
	)
	sel := NewSelector(store, bestFitConfig())

	m, err := sel.Select(context.Background(), "tape", 150, nil, "self-owner")
	require.NoError(t, err)
	assert.Equal(t, "tape2", m.ID, "best fit picks the smallest medium that still satisfies the request")
	assert.Equal(t, "self-owner", store.media["tape2"].LockOwner)
}

func TestSelector_SkipsBlankAndFull(t *testing.T) {
	store := newFakeStore(
		dss.MediaInfo{ID: "blank", Family: "tape", FSStatus: dss.FSStatusBlank, Stats: dss.MediaStats{PhysSpcFree: 9999}},
		dss.MediaInfo{ID: "full", Family: "tape", FSStatus: dss.FSStatusFull, Stats: dss.MediaStats{PhysSpcFree: 9999}},
		dss.MediaInfo{ID: "ok", Family: "tape", FSStatus: dss.FSStatusUsed, Stats: dss.MediaStats{PhysSpcFree: 300}},
	)
	sel := NewSelector(store, bestFitConfig())

	m, err := sel.Select(context.Background(), "tape", 100, nil, "self-owner")
	require.NoError(t, err)
	assert.Equal(t, "ok", m.ID)
}

func TestSelector_ExternallyLockedFittingMediumReturnsAgain(t *testing.T) {
	store := newFakeStore(
		dss.MediaInfo{ID: "taken", Family: "tape", FSStatus: dss.FSStatusUsed, LockOwner: "other-host:1:2:3", Stats: dss.MediaStats{PhysSpcFree: 300}},
	)
	sel := NewSelector(store, bestFitConfig())

	_, err := sel.Select(context.Background(), "tape", 100, nil, "self-owner")
	assert.ErrorIs(t, err, lrserr.ErrAgain)
}

func TestSelector_NoFittingMediumReturnsNoSpace(t *testing.T) {
	store := newFakeStore(
		dss.MediaInfo{ID: "small", Family: "tape", FSStatus: dss.FSStatusUsed, Stats: dss.MediaStats{PhysSpcFree: 10}},
	)
	sel := NewSelector(store, bestFitConfig())

	_, err := sel.Select(context.Background(), "tape", 1000, nil, "self-owner")
	assert.ErrorIs(t, err, lrserr.ErrNoSpace)
}

func TestSelector_FirstFitPolicyPicksFirstCandidateRegardlessOfSize(t *testing.T) {
	store := newFakeStore(
		dss.MediaInfo{ID: "big", Family: "tape", FSStatus: dss.FSStatusUsed, Stats: dss.MediaStats{PhysSpcFree: 5000}},
	)
	cfg := config.DefaultConfig()
	cfg.LRS.Policy = config.PolicyFirstFit
	sel := NewSelector(store, cfg)

	m, err := sel.Select(context.Background(), "tape", 100, nil, "self-owner")
	require.NoError(t, err)
	assert.Equal(t, "big", m.ID)
}
