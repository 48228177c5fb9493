package scheduler

import (
	"context"
	"fmt"

	"lrsd/internal/lrserr"
	"lrsd/internal/media"
)

// compatibleDriveExists reports whether any non-failed device in the
// cache is compatible with mediumModel, used to distinguish "temporarily
// busy" (EAGAIN) from "structurally impossible" (ENODEV) when freeing
// fails.
func compatibleDriveExists(devices []*Device, compat *media.DriveCompat, family, mediumModel string) bool {
	for _, d := range devices {
		if d.Status == StatusFailed {
			continue
		}
		if compat.Compatible(family, mediumModel, d.Model) {
			return true
		}
	}
	return false
}

// freeDevice runs the drive-freeing planner: pick the loaded-or-mounted
// device with the least free medium space, unmount/unload it, and return
// it empty and locked.
func (s *Scheduler) freeDevice(ctx context.Context, family, mediumModel string) (*Device, error) {
	excluded := map[string]bool{}
	for {
		devices := s.cache.Devices()
		dev := pickDriveToFree(devices, excluded)
		if dev == nil {
			if compatibleDriveExists(devices, s.compat, family, mediumModel) {
				return nil, fmt.Errorf("no suitable device to free: %w", lrserr.ErrAgain)
			}
			return nil, fmt.Errorf("no compatible device exists: %w", lrserr.ErrNoDevice)
		}

		if err := s.acquireDevice(ctx, dev); err != nil {
			excluded[dev.Serial] = true
			continue
		}

		if dev.Status == StatusMounted {
			if err := s.umount(ctx, dev); err != nil {
				s.releaseDevice(ctx, dev)
				excluded[dev.Serial] = true
				continue
			}
		}
		if dev.Status == StatusLoaded {
			if err := s.unload(ctx, dev); err != nil {
				s.releaseDevice(ctx, dev)
				excluded[dev.Serial] = true
				continue
			}
		}

		return dev, nil
	}
}
