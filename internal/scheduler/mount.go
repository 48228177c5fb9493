package scheduler

import (
	"context"
	"errors"
	"fmt"

	"lrsd/internal/dss"
	"lrsd/internal/log"
	"lrsd/internal/lrserr"
)

// load moves medium into an empty device, transitioning empty -> loaded.
// A library EINVAL on a drive-to-drive move is reported as ErrBusy with
// the device left empty so the caller may retry; any other failure
// demotes the device to failed.
func (s *Scheduler) load(ctx context.Context, d *Device, medium *dss.MediaInfo) error {
	if d.Status != StatusEmpty {
		return fmt.Errorf("ldm load: device %q not empty: %w", d.Path, lrserr.ErrAgain)
	}

	err := s.adapters.Library.Load(ctx, d.Path, medium.ID)
	if errors.Is(err, lrserr.ErrBusy) {
		return err
	}
	if err != nil {
		d.Status = StatusFailed
		return fmt.Errorf("load %q into %q: %w", medium.ID, d.Path, err)
	}

	d.Status = StatusLoaded
	d.Medium = medium
	return nil
}

// mount transitions loaded -> mounted, reusing a pre-existing mount if the
// FS adapter reports one already live.
func (s *Scheduler) mount(ctx context.Context, d *Device) error {
	if d.Status != StatusLoaded {
		return fmt.Errorf("mount: device %q not loaded: %w", d.Path, lrserr.ErrInvalid)
	}
	if d.Medium == nil {
		return fmt.Errorf("mount: device %q has no medium: %w", d.Path, lrserr.ErrInvalid)
	}

	mountPath := mountPathFor(s.cfg.LRS.MountPrefix, d.Path)

	already, err := s.adapters.FS.MountedAt(ctx, d.Path, mountPath)
	if err != nil {
		d.Status = StatusFailed
		return fmt.Errorf("mount probe %q: %w", d.Path, err)
	}
	if !already {
		if err := s.adapters.FS.Mount(ctx, d.Path, mountPath); err != nil {
			d.Status = StatusFailed
			return fmt.Errorf("mount %q at %q: %w", d.Path, mountPath, err)
		}
	}

	d.Status = StatusMounted
	d.MountPath = mountPath
	return nil
}

// umount transitions mounted -> loaded.
func (s *Scheduler) umount(ctx context.Context, d *Device) error {
	if d.Status != StatusMounted {
		return fmt.Errorf("umount: device %q not mounted: %w", d.Path, lrserr.ErrInvalid)
	}
	if d.MountPath == "" || d.Medium == nil {
		return fmt.Errorf("umount: device %q missing mount path or medium: %w", d.Path, lrserr.ErrInvalid)
	}

	if err := s.adapters.FS.Unmount(ctx, d.MountPath); err != nil {
		d.Status = StatusFailed
		return fmt.Errorf("umount %q: %w", d.Path, err)
	}

	d.Status = StatusLoaded
	d.MountPath = ""
	return nil
}

// unload transitions loaded -> empty, moving the medium back to a
// library-chosen free slot and releasing the medium's DSS lock: by
// convention the caller already holds it.
func (s *Scheduler) unload(ctx context.Context, d *Device) error {
	if d.Status != StatusLoaded {
		return fmt.Errorf("unload: device %q not loaded: %w", d.Path, lrserr.ErrInvalid)
	}
	if d.Medium == nil {
		return fmt.Errorf("unload: device %q has no medium: %w", d.Path, lrserr.ErrInvalid)
	}

	medium := d.Medium
	if err := s.adapters.Library.Unload(ctx, d.Path); err != nil {
		d.Status = StatusFailed
		return fmt.Errorf("unload %q from %q: %w", medium.ID, d.Path, err)
	}

	d.Status = StatusEmpty
	d.Medium = nil

	if err := s.store.UnlockMedia(ctx, dss.ByID{Family: medium.Family, ID: medium.ID}, s.self); err != nil {
		log.LogOnErr(log.WithMedium(log.WithDevice(s.logger, d.Path), medium.ID), err, "release medium lock after unload")
	}
	return nil
}
