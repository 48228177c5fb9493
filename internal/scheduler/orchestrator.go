package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lrsd/internal/dss"
	"lrsd/internal/lock"
	"lrsd/internal/log"
	"lrsd/internal/lrserr"
	"lrsd/internal/metrics"
)

// maxWriteRetries bounds the read-only-mount recovery loop in WritePrepare.
// The medium selector never hands out the same medium twice (a losing
// medium is marked full and persisted before the retry), so this is a
// safety bound rather than an expected iteration count.
const maxWriteRetries = 8

// mediaOp distinguishes the two ways media_prepare can be entered.
type mediaOp int

const (
	opRead mediaOp = iota
	opFormat
)

// errRetryWrite signals WritePrepare's outer loop to restart from the top
// after a freshly mounted medium turned out to be read-only.
var errRetryWrite = errors.New("retry write_prepare: mount came up read-only")

// WritePrepare reserves a device and medium able to accept at least size
// bytes carrying every tag in tags, mounting it if necessary, and returns
// an Intent describing where to write.
func (s *Scheduler) WritePrepare(ctx context.Context, size int64, tags []string) (intent *Intent, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOp("write_prepare", start, err) }()
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		intent, err := s.writePrepareOnce(ctx, size, tags)
		if err == nil {
			return intent, nil
		}
		if !errors.Is(err, errRetryWrite) {
			return nil, err
		}
		s.logger.Warn().Int("attempt", attempt+1).Msg("write_prepare retry after read-only mount")
	}
	return nil, fmt.Errorf("write_prepare: exhausted retries on read-only mounts: %w", lrserr.ErrNoSpace)
}

func (s *Scheduler) writePrepareOnce(ctx context.Context, size int64, tags []string) (*Intent, error) {
	if err := s.cache.Refresh(ctx); err != nil {
		return nil, err
	}
	policy := s.cfg.LRS.Policy
	devices := s.cache.Devices()

	// Fast path A: a mounted device already holding a fitting medium.
	if dev := s.pickAndAcquire(ctx, func(excluded map[string]bool) *Device {
		return pickByStatus(devices, StatusMounted, size, tags, policy, excluded)
	}); dev != nil {
		return s.finishWrite(ctx, dev)
	}

	// Fast path B: a loaded-but-unmounted device holding a fitting medium.
	if dev := s.pickAndAcquire(ctx, func(excluded map[string]bool) *Device {
		return pickByStatus(devices, StatusLoaded, size, tags, policy, excluded)
	}); dev != nil {
		if err := s.mount(ctx, dev); err != nil {
			s.releaseDevice(ctx, dev)
			return nil, err
		}
		return s.finishWrite(ctx, dev)
	}

	// Slow path: ask the medium selector for a fresh candidate, then find
	// or make room for it in a drive.
	medium, err := s.selector.Select(ctx, s.cfg.LRS.DefaultFamily, size, tags, s.self)
	if err != nil {
		return nil, err
	}

	dev := pickHolding(devices, medium.ID, nil)
	if dev != nil {
		dev.Medium = medium
		if err := s.acquireDevice(ctx, dev); err != nil {
			log.LogOnErr(log.WithMedium(log.WithDevice(s.logger, dev.Path), medium.ID),
				s.store.UnlockMedia(ctx, dss.ByID{Family: medium.Family, ID: medium.ID}, s.self),
				"release medium lock after failed acquisition of holding device")
			return nil, err
		}
	} else {
		dev, err = s.pickEmptyOrFree(ctx, medium)
		if err != nil {
			log.LogOnErr(log.WithMedium(s.logger, medium.ID),
				s.store.UnlockMedia(ctx, dss.ByID{Family: medium.Family, ID: medium.ID}, s.self),
				"release medium lock after failing to find a device")
			return nil, err
		}
		if err := s.load(ctx, dev, medium); err != nil {
			s.releaseDevice(ctx, dev)
			log.LogOnErr(log.WithMedium(log.WithDevice(s.logger, dev.Path), medium.ID),
				s.store.UnlockMedia(ctx, dss.ByID{Family: medium.Family, ID: medium.ID}, s.self),
				"release medium lock after failed load")
			if errors.Is(err, lrserr.ErrBusy) {
				return nil, fmt.Errorf("write_prepare: library rejected drive-to-drive move: %w", lrserr.ErrAgain)
			}
			return nil, err
		}
	}

	if dev.Status != StatusMounted {
		if err := s.mount(ctx, dev); err != nil {
			s.releaseDevice(ctx, dev)
			return nil, err
		}
	}
	return s.finishWrite(ctx, dev)
}

// pickAndAcquire repeatedly calls pick, excluding any device whose lock
// acquisition fails, until a device is reserved or pick returns nil.
func (s *Scheduler) pickAndAcquire(ctx context.Context, pick func(excluded map[string]bool) *Device) *Device {
	excluded := map[string]bool{}
	for {
		dev := pick(excluded)
		if dev == nil {
			return nil
		}
		if err := s.acquireDevice(ctx, dev); err != nil {
			excluded[dev.Serial] = true
			continue
		}
		return dev
	}
}

// pickEmptyOrFree finds an empty, available device, invoking the
// drive-freeing planner if none is idle.
func (s *Scheduler) pickEmptyOrFree(ctx context.Context, medium *dss.MediaInfo) (*Device, error) {
	excluded := map[string]bool{}
	for {
		dev := pickEmpty(s.cache.Devices(), excluded)
		if dev == nil {
			return s.freeDevice(ctx, medium.Family, medium.Model)
		}
		if err := s.acquireDevice(ctx, dev); err != nil {
			excluded[dev.Serial] = true
			continue
		}
		return dev, nil
	}
}

// finishWrite checks the mount's writability, completing the intent on
// success or marking the medium full and asking the caller to retry on a
// read-only mount.
func (s *Scheduler) finishWrite(ctx context.Context, dev *Device) (*Intent, error) {
	writable, err := s.adapters.FS.IsWritable(ctx, dev.MountPath)
	if err != nil {
		s.releaseDevice(ctx, dev)
		return nil, err
	}
	if !writable {
		dev.Medium.FSStatus = dss.FSStatusFull
		log.LogOnErr(log.WithMedium(log.WithDevice(s.logger, dev.Path), dev.Medium.ID),
			s.store.UpdateMedia(ctx, *dev.Medium), "persist medium full after read-only mount")
		s.releaseDevice(ctx, dev)
		return nil, errRetryWrite
	}

	return &Intent{
		ID:         newIntentID(),
		MountPath:  dev.MountPath,
		MediumID:   dev.Medium.ID,
		Family:     dev.Family,
		FSType:     dev.Medium.FSType,
		AddrType:   dev.Medium.AddrType,
		ExtentSize: dev.Medium.Stats.PhysSpcFree,
		device:     dev,
	}, nil
}

// ReadPrepare reserves whatever device currently holds (or can be made to
// hold) mediumID, mounted read-ready, and returns an Intent describing
// where to read from.
func (s *Scheduler) ReadPrepare(ctx context.Context, mediumID string) (intent *Intent, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOp("read_prepare", start, err) }()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.Refresh(ctx); err != nil {
		return nil, err
	}
	dev, err := s.mediaPrepare(ctx, mediumID, opRead)
	if err != nil {
		return nil, err
	}
	return &Intent{
		ID:         newIntentID(),
		MountPath:  dev.MountPath,
		MediumID:   dev.Medium.ID,
		Family:     dev.Family,
		FSType:     dev.Medium.FSType,
		AddrType:   dev.Medium.AddrType,
		ExtentSize: dev.Medium.Stats.PhysSpcFree,
		device:     dev,
	}, nil
}

// mediaPrepare is the generic path shared by read_prepare and format: find
// or reserve a device for mediumID, gated on the filesystem state the
// operation requires, acquiring locks in the mandatory medium-then-device
// order. On any failure every lock taken within this call is released.
func (s *Scheduler) mediaPrepare(ctx context.Context, mediumID string, op mediaOp) (*Device, error) {
	medium, err := s.store.GetMedium(ctx, dss.ByID{Family: s.cfg.LRS.DefaultFamily, ID: mediumID})
	if err != nil {
		return nil, err
	}

	if op == opFormat {
		if medium.FSStatus != dss.FSStatusBlank {
			return nil, fmt.Errorf("media_prepare: medium %q is not blank: %w", mediumID, lrserr.ErrInvalid)
		}
	} else if medium.FSStatus == dss.FSStatusBlank {
		return nil, fmt.Errorf("media_prepare: medium %q has no filesystem: %w", mediumID, lrserr.ErrInvalid)
	}

	id := dss.ByID{Family: medium.Family, ID: medium.ID}
	if err := s.store.LockMedia(ctx, id, s.self); err != nil {
		return nil, err
	}

	devices := s.cache.Devices()
	dev := pickHolding(devices, medium.ID, nil)
	if dev != nil {
		dev.Medium = medium
		if err := s.store.LockDevice(ctx, dss.ByID{Family: dev.Family, ID: dev.Serial}, s.self); err != nil {
			log.LogOnErr(log.WithMedium(log.WithDevice(s.logger, dev.Path), mediumID),
				s.store.UnlockMedia(ctx, id, s.self), "release medium lock after failed device acquisition")
			return nil, err
		}
		dev.LockedLocal = true
	} else {
		dev, err = s.pickEmptyOrFree(ctx, medium)
		if err != nil {
			log.LogOnErr(log.WithMedium(s.logger, mediumID),
				s.store.UnlockMedia(ctx, id, s.self), "release medium lock after failing to find a device")
			return nil, err
		}
		if err := s.load(ctx, dev, medium); err != nil {
			s.releaseDevice(ctx, dev)
			log.LogOnErr(log.WithMedium(log.WithDevice(s.logger, dev.Path), mediumID),
				s.store.UnlockMedia(ctx, id, s.self), "release medium lock after failed load")
			if errors.Is(err, lrserr.ErrBusy) {
				return nil, fmt.Errorf("media_prepare: library rejected drive-to-drive move: %w", lrserr.ErrAgain)
			}
			return nil, err
		}
	}

	if op != opFormat && dev.Status != StatusMounted {
		if err := s.mount(ctx, dev); err != nil {
			s.releaseDevice(ctx, dev)
			return nil, err
		}
	}
	return dev, nil
}

// Format lays a fresh filesystem on a blank medium and mounts it ready for
// writes, releasing its locks before returning regardless of outcome.
func (s *Scheduler) Format(ctx context.Context, mediumID, fsType string) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveOp("format", start, err) }()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.Refresh(ctx); err != nil {
		return err
	}
	dev, err := s.mediaPrepare(ctx, mediumID, opFormat)
	if err != nil {
		return err
	}
	defer s.releaseDevice(ctx, dev)

	mountPath := mountPathFor(s.cfg.LRS.MountPrefix, dev.Path)
	if err := s.adapters.FS.Format(ctx, dev.Path, mountPath, mediumID); err != nil {
		dev.Status = StatusFailed
		return fmt.Errorf("format %q: %w", mediumID, err)
	}

	free, used, err := s.adapters.FS.DF(ctx, mountPath)
	if err != nil {
		dev.Status = StatusFailed
		return fmt.Errorf("format %q: post-format df: %w", mediumID, err)
	}

	medium := dev.Medium
	medium.FSType = fsType
	medium.FSLabel = mediumID
	medium.FSStatus = dss.FSStatusEmpty
	medium.Stats.PhysSpcFree = free
	medium.Stats.PhysSpcUsed = used
	log.LogOnErr(log.WithMedium(log.WithDevice(s.logger, dev.Path), medium.ID),
		s.store.UpdateMedia(ctx, *medium), "persist formatted medium")

	dev.Status = StatusMounted
	dev.MountPath = mountPath
	return nil
}

// IOComplete flushes the intent's mount, refreshes the medium's space and
// object accounting, and persists it. errCode is the caller's own
// operation result, passed through for the fatal-I/O transition and
// returned unchanged on success.
func (s *Scheduler) IOComplete(ctx context.Context, intent *Intent, fragmentsWritten, objectsWritten int64, errCode error) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveOp("io_complete", start, err) }()
	s.mu.Lock()
	defer s.mu.Unlock()

	if intent == nil || intent.device == nil {
		return fmt.Errorf("io_complete: intent has no reserved device: %w", lrserr.ErrInvalid)
	}
	dev := intent.device
	medium := dev.Medium

	flushErr := s.adapters.IO.Flush(ctx, intent.MountPath)
	if errCode != nil || errors.Is(flushErr, lrserr.ErrIOFatal) {
		medium.FSStatus = dss.FSStatusFull
		dev.Status = StatusFailed
	}

	if free, used, err := s.adapters.FS.DF(ctx, intent.MountPath); err == nil {
		medium.Stats.PhysSpcFree = free
		medium.Stats.PhysSpcUsed = used
	}
	medium.Stats.LogicSpcUsed += fragmentsWritten
	medium.Stats.NumObjects += objectsWritten
	if medium.FSStatus == dss.FSStatusEmpty && objectsWritten > 0 {
		medium.FSStatus = dss.FSStatusUsed
	}
	log.LogOnErr(log.WithMedium(log.WithDevice(s.logger, dev.Path), medium.ID),
		s.store.UpdateMedia(ctx, *medium), "persist medium accounting after io_complete")

	if flushErr != nil {
		return flushErr
	}
	return errCode
}

// ResourceRelease releases the device and medium locks an Intent holds,
// idempotent on an already-released or nil Intent.
func (s *Scheduler) ResourceRelease(ctx context.Context, intent *Intent) {
	start := time.Now()
	defer func() { metrics.ObserveOp("resource_release", start, nil) }()
	s.mu.Lock()
	defer s.mu.Unlock()

	if intent == nil || intent.device == nil {
		return
	}
	s.releaseDevice(ctx, intent.device)
	intent.device = nil
	intent.MountPath = ""
}

// Locate resolves an object to the hostname of whoever currently holds a
// convenient lock on the medium storing it. At least one of oid, uuid must
// be non-empty; version 0 means "latest".
func (s *Scheduler) Locate(ctx context.Context, oid, uuid string, version int) (host string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOp("locate", start, err) }()
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.store.FindObjectMedium(ctx, oid, uuid, version)
	if err != nil {
		return "", err
	}
	medium, err := s.store.GetMedium(ctx, id)
	if err != nil {
		return "", err
	}
	if medium.LockOwner == "" {
		return "", fmt.Errorf("locate: medium %q held by no convenient node currently: %w", id.ID, lrserr.ErrAgain)
	}
	return lock.Host(medium.LockOwner), nil
}
