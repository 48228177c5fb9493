package scheduler

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"lrsd/internal/config"
	"lrsd/internal/dss"
	"lrsd/internal/ldm"
	"lrsd/internal/lock"
	"lrsd/internal/log"
	"lrsd/internal/media"
)

// Scheduler is the Orchestrator: the single entry point composing the
// device cache, medium selector, compatibility oracle, device picker, and
// mount/load/unload state machine into write_prepare/read_prepare/format/
// io_complete/resource_release/locate.
//
// A Scheduler instance is single-threaded from the point of view of its
// device cache and intent lifecycle; mu serializes every
// client-facing method so the same Go process may still call it from
// multiple goroutines safely.
type Scheduler struct {
	mu sync.Mutex

	store    dss.Store
	adapters ldm.Adapters
	cache    *Cache
	compat   *media.DriveCompat
	selector *media.Selector
	cfg      *config.Config
	self     string
	logger   zerolog.Logger
}

// New builds a Scheduler over a DSS store and one family's LDM adapters.
// tid is the calling thread/goroutine identifier folded into the lock
// owner string; pass 0 if not meaningful.
func New(store dss.Store, adapters ldm.Adapters, cfg *config.Config, host string, tid int) *Scheduler {
	return &Scheduler{
		store:    store,
		adapters: adapters,
		cache:    NewCache(store, adapters, cfg, host),
		compat:   media.NewDriveCompat(cfg),
		selector: media.NewSelector(store, cfg),
		cfg:      cfg,
		self:     lock.NewOwnerID(tid),
		logger:   log.WithComponent("orchestrator"),
	}
}

// Init refreshes the device cache for the first time.
func (s *Scheduler) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Refresh(ctx)
}

// Fini releases every device this instance still holds locked. Safe to
// call multiple times.
func (s *Scheduler) Fini(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.cache.Devices() {
		if d.LockedLocal {
			s.releaseDevice(ctx, d)
		}
	}
}

// DeviceAdd registers a new drive at runtime, reading its row back from DSS
// by id rather than trusting caller-supplied fields.
func (s *Scheduler) DeviceAdd(ctx context.Context, id dss.ByID) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.DeviceAdd(ctx, id)
}

// Self returns this instance's lock owner identity, exposed for tests and
// diagnostics.
func (s *Scheduler) Self() string {
	return s.self
}

// Devices returns the live device cache slice, for status
// reporting and diagnostics. Callers must not retain it past the next
// call into the Scheduler.
func (s *Scheduler) Devices() []*Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Devices()
}
