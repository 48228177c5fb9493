package scheduler

import (
	"context"

	"lrsd/internal/dss"
	"lrsd/internal/log"
)

// acquireDevice locks a device for this instance, acquiring the medium
// lock first if the device currently holds one, matching the mandatory
// medium-before-device order. On failure any
// partial acquisition is released before returning.
func (s *Scheduler) acquireDevice(ctx context.Context, d *Device) error {
	if d.Medium != nil {
		if err := s.store.LockMedia(ctx, dss.ByID{Family: d.Family, ID: d.Medium.ID}, s.self); err != nil {
			return err
		}
	}
	if err := s.store.LockDevice(ctx, dss.ByID{Family: d.Family, ID: d.Serial}, s.self); err != nil {
		if d.Medium != nil {
			log.LogOnErr(log.WithMedium(log.WithDevice(s.logger, d.Serial), d.Medium.ID),
				s.store.UnlockMedia(ctx, dss.ByID{Family: d.Family, ID: d.Medium.ID}, s.self),
				"release medium lock after failed device acquisition")
		}
		return err
	}
	d.LockedLocal = true
	return nil
}

// releaseDevice releases the device lock, then the medium lock, matching
// the mandatory device-before-medium release order.
func (s *Scheduler) releaseDevice(ctx context.Context, d *Device) {
	if !d.LockedLocal {
		return
	}
	devLogger := log.WithDevice(s.logger, d.Serial)
	log.LogOnErr(devLogger, s.store.UnlockDevice(ctx, dss.ByID{Family: d.Family, ID: d.Serial}, s.self),
		"release device lock")
	d.LockedLocal = false
	if d.Medium != nil {
		log.LogOnErr(log.WithMedium(devLogger, d.Medium.ID),
			s.store.UnlockMedia(ctx, dss.ByID{Family: d.Family, ID: d.Medium.ID}, s.self), "release medium lock")
	}
}
