package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lrsd/internal/config"
	"lrsd/internal/dss"
)

func medium(id string, free int64, tags ...string) *dss.MediaInfo {
	return &dss.MediaInfo{ID: id, FSStatus: dss.FSStatusUsed, Tags: tags, Stats: dss.MediaStats{PhysSpcFree: free}}
}

func TestPickByStatus_BestFitPicksSmallestFittingMedium(t *testing.T) {
	devices := []*Device{
		{Serial: "d0", Status: StatusMounted, Medium: medium("T0", 80 << 30)},
		{Serial: "d1", Status: StatusMounted, Medium: medium("T1", 40 << 30)},
		{Serial: "d2", Status: StatusMounted, Medium: medium("T2", 20 << 30)},
	}

	got := pickByStatus(devices, StatusMounted, 30<<30, nil, config.PolicyBestFit, map[string]bool{})
	assert.Equal(t, "d1", got.Serial)
}

func TestPickByStatus_FirstFitPicksFirstFittingMedium(t *testing.T) {
	devices := []*Device{
		{Serial: "d0", Status: StatusMounted, Medium: medium("T0", 80 << 30)},
		{Serial: "d1", Status: StatusMounted, Medium: medium("T1", 40 << 30)},
	}

	got := pickByStatus(devices, StatusMounted, 30<<30, nil, config.PolicyFirstFit, map[string]bool{})
	assert.Equal(t, "d0", got.Serial)
}

func TestPickByStatus_SkipsFullAndUndersizedAndExcluded(t *testing.T) {
	full := medium("T0", 80<<30)
	full.FSStatus = dss.FSStatusFull
	devices := []*Device{
		{Serial: "d0", Status: StatusMounted, Medium: full},
		{Serial: "d1", Status: StatusMounted, Medium: medium("T1", 10 << 30)},
		{Serial: "d2", Status: StatusMounted, Medium: medium("T2", 80 << 30)},
	}

	got := pickByStatus(devices, StatusMounted, 30<<30, nil, config.PolicyBestFit, map[string]bool{"d2": true})
	assert.Nil(t, got)
}

func TestPickByStatus_RequiresEveryTag(t *testing.T) {
	devices := []*Device{
		{Serial: "d0", Status: StatusMounted, Medium: medium("T0", 80<<30, "fast")},
		{Serial: "d1", Status: StatusMounted, Medium: medium("T1", 80<<30, "fast", "encrypted")},
	}

	got := pickByStatus(devices, StatusMounted, 1<<20, []string{"fast", "encrypted"}, config.PolicyBestFit, map[string]bool{})
	assert.Equal(t, "d1", got.Serial)
}

func TestPickEmpty_IgnoresNonEmptyAndLockedDevices(t *testing.T) {
	devices := []*Device{
		{Serial: "d0", Status: StatusLoaded},
		{Serial: "d1", Status: StatusEmpty, LockedLocal: true},
		{Serial: "d2", Status: StatusEmpty},
	}

	got := pickEmpty(devices, map[string]bool{})
	assert.Equal(t, "d2", got.Serial)
}

func TestPickHolding_MatchesOnMediumID(t *testing.T) {
	devices := []*Device{
		{Serial: "d0", Medium: medium("T0", 10 << 30)},
		{Serial: "d1", Medium: medium("T1", 10 << 30)},
	}

	assert.Equal(t, "d1", pickHolding(devices, "T1", nil).Serial)
	assert.Nil(t, pickHolding(devices, "T2", nil))
}

func TestPickDriveToFree_PicksLeastFreeAmongLoadedOrMounted(t *testing.T) {
	devices := []*Device{
		{Serial: "d0", Status: StatusEmpty},
		{Serial: "d1", Status: StatusLoaded, Medium: medium("T1", 90 << 30)},
		{Serial: "d2", Status: StatusMounted, Medium: medium("T2", 5 << 30)},
	}

	got := pickDriveToFree(devices, map[string]bool{})
	assert.Equal(t, "d2", got.Serial)
}

func TestAvailable_ExcludesExternallyLockedMedium(t *testing.T) {
	held := medium("T0", 10 << 30)
	held.LockOwner = "otherhost:1:2:3"
	d := &Device{Serial: "d0", Medium: held}

	assert.False(t, available(d, map[string]bool{}))
}
