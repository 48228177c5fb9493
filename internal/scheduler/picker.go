package scheduler

import (
	"lrsd/internal/config"
	"lrsd/internal/dss"
	"lrsd/internal/lock"
)

// available reports whether a device is a legal pick: not excluded, not
// already locked by this instance, and not holding a medium whose cached
// row shows any lock owner (this instance's own included).
func available(d *Device, excluded map[string]bool) bool {
	if excluded[d.Serial] {
		return false
	}
	if d.LockedLocal {
		return false
	}
	if d.Medium != nil && lock.FromRow(d.Medium.LockOwner, "").State == lock.External {
		return false
	}
	return true
}

func fits(m *dss.MediaInfo, requiredSize int64, tags []string) bool {
	if m == nil {
		return false
	}
	if m.FSStatus == dss.FSStatusFull {
		return false
	}
	if !hasAllTags(m.Tags, tags) {
		return false
	}
	if requiredSize > 0 && m.Stats.PhysSpcFree < requiredSize {
		return false
	}
	return true
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// pickByStatus implements the first-fit/best-fit ranking policies over
// devices at the given status holding a medium that fits requiredSize and
// tags.
func pickByStatus(devices []*Device, status OpStatus, requiredSize int64, tags []string, policy string, excluded map[string]bool) *Device {
	var best *Device
	for _, d := range devices {
		if d.Status != status || !available(d, excluded) {
			continue
		}
		if !fits(d.Medium, requiredSize, tags) {
			continue
		}
		if policy == config.PolicyFirstFit {
			return d
		}
		if best == nil || d.Medium.Stats.PhysSpcFree < best.Medium.Stats.PhysSpcFree {
			best = d
		}
		if requiredSize > 0 && d.Medium.Stats.PhysSpcFree == requiredSize {
			// exact match stops the search even under best-fit.
			return d
		}
	}
	return best
}

// pickEmpty picks any empty, available device.
func pickEmpty(devices []*Device, excluded map[string]bool) *Device {
	for _, d := range devices {
		if d.Status == StatusEmpty && available(d, excluded) {
			return d
		}
	}
	return nil
}

// pickHolding finds the device currently holding mediumID, if any, on this
// host.
func pickHolding(devices []*Device, mediumID string, excluded map[string]bool) *Device {
	for _, d := range devices {
		if d.Medium != nil && d.Medium.ID == mediumID && available(d, excluded) {
			return d
		}
	}
	return nil
}

// pickDriveToFree implements the drive-to-free ranking policy: among
// loaded or mounted, available devices, pick the one with the least free
// space on its medium.
func pickDriveToFree(devices []*Device, excluded map[string]bool) *Device {
	var best *Device
	for _, d := range devices {
		if d.Status != StatusLoaded && d.Status != StatusMounted {
			continue
		}
		if !available(d, excluded) || d.Medium == nil {
			continue
		}
		if best == nil || d.Medium.Stats.PhysSpcFree < best.Medium.Stats.PhysSpcFree {
			best = d
		}
	}
	return best
}
