package media

import (
	"context"

	"lrsd/internal/config"
	"lrsd/internal/dss"
	"lrsd/internal/lock"
	"lrsd/internal/lrserr"
)

// Selector picks a medium to satisfy a write request: formatted, unlocked by
// admin, with enough free space, carrying every requested tag.
type Selector struct {
	store  dss.Store
	policy string
}

// NewSelector builds a medium selector over the given DSS handle, applying
// the configured selection policy (best_fit or first_fit).
func NewSelector(store dss.Store, cfg *config.Config) *Selector {
	policy := cfg.LRS.Policy
	if policy == "" {
		policy = config.PolicyBestFit
	}
	return &Selector{store: store, policy: policy}
}

// Select finds and locks a medium of the given family with at least
// requiredSize bytes free and every tag in tags present. On success the
// returned medium is locked under self and is a deep copy safe for the
// caller to mutate. Returns ErrAgain if a fitting medium exists but is
// locked externally, ErrNoSpace if none fits at all.
func (s *Selector) Select(ctx context.Context, family string, requiredSize int64, tags []string, self string) (*dss.MediaInfo, error) {
	filter := dss.MediaFilter{
		Family:         family,
		AdminStatus:    dss.AdminUnlocked,
		MinFree:        requiredSize,
		ExcludeFSState: []dss.FSStatus{dss.FSStatusBlank, dss.FSStatusFull},
		Tags:           tags,
	}

	candidates, err := s.store.GetMedia(ctx, filter)
	if err != nil {
		return nil, err
	}

	locked := map[string]bool{}
	for {
		best, availMedia := s.pick(candidates, requiredSize, locked)
		if best == nil {
			if availMedia {
				return nil, lrserr.ErrAgain
			}
			return nil, lrserr.ErrNoSpace
		}

		id := dss.ByID{Family: best.Family, ID: best.ID}
		if err := s.store.LockMedia(ctx, id, self); err != nil {
			// Lost the race: someone else grabbed it between GetMedia and
			// LockMedia. Mark it locked and keep looking (lock_race_retry).
			locked[best.ID] = true
			continue
		}

		return best.Clone(), nil
	}
}

// pick applies the configured policy over candidates with enough free
// space, skipping ones that lost a lock race in this call and ones whose
// row shows any lock owner (self included). availMedia reports
// whether at least one fitting candidate existed at all, locked or not,
// distinguishing "everything that fits is busy" (EAGAIN) from "nothing
// fits" (ENOSPC) when best comes back nil.
func (s *Selector) pick(candidates []dss.MediaInfo, requiredSize int64, locked map[string]bool) (best *dss.MediaInfo, availMedia bool) {
	for i := range candidates {
		curr := &candidates[i]
		if curr.Stats.PhysSpcFree < requiredSize {
			continue
		}
		availMedia = true

		if locked[curr.ID] {
			continue
		}
		if curr.LockOwner != "" && lock.FromRow(curr.LockOwner, "").State == lock.External {
			continue
		}

		if s.policy == config.PolicyFirstFit {
			return curr, true
		}
		if best == nil || curr.Stats.PhysSpcFree < best.Stats.PhysSpcFree {
			best = curr
		}
	}
	return best, availMedia
}
