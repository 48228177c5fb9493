package dss

import (
	"context"
	"strconv"
	"sync"

	"lrsd/internal/lrserr"
)

// objectRecord is one oid/uuid/version -> medium mapping.
type objectRecord struct {
	oid, uuid string
	version   int
	medium    ByID
}

// Fake is an in-memory Store used by scheduler tests in place of a real
// database.
type Fake struct {
	mu      sync.Mutex
	devices map[string]DeviceInfo
	media   map[string]MediaInfo
	// objects is keyed by "oid|uuid|version" for idempotent PutObject.
	objects map[string]objectRecord
}

// NewFake builds an empty fake store.
func NewFake() *Fake {
	return &Fake{
		devices: map[string]DeviceInfo{},
		media:   map[string]MediaInfo{},
		objects: map[string]objectRecord{},
	}
}

// PutDevice seeds or replaces a device row.
func (f *Fake) PutDevice(d DeviceInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[d.ID] = d
}

// PutMedium seeds or replaces a medium row.
func (f *Fake) PutMedium(m MediaInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media[m.ID] = m
}

// PutObject registers an object-to-medium mapping for FindObjectMedium.
func (f *Fake) PutObject(oid, uuid string, version int, medium ByID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objectKey(oid, uuid, version)] = objectRecord{oid: oid, uuid: uuid, version: version, medium: medium}
}

func objectKey(oid, uuid string, version int) string {
	return oid + "|" + uuid + "|" + strconv.Itoa(version)
}

// DeviceLockOwner reports the current lock owner of a device row, for test
// assertions. Returns "" if the device is unlocked or unknown.
func (f *Fake) DeviceLockOwner(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices[id].LockOwner
}

// MediumLockOwner reports the current lock owner of a medium row, for test
// assertions. Returns "" if the medium is unlocked or unknown.
func (f *Fake) MediumLockOwner(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.media[id].LockOwner
}

func (f *Fake) GetDevices(ctx context.Context, flt DeviceFilter) ([]DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []DeviceInfo
	for _, d := range f.devices {
		if flt.Host != "" && d.Host != flt.Host {
			continue
		}
		if flt.Family != "" && d.Family != flt.Family {
			continue
		}
		if flt.AdminStatus != "" && d.AdminStatus != flt.AdminStatus {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *Fake) GetDevice(ctx context.Context, id ByID) (*DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id.ID]
	if !ok {
		return nil, lrserr.ErrNotFound
	}
	cp := d
	return &cp, nil
}

func (f *Fake) GetMedia(ctx context.Context, flt MediaFilter) ([]MediaInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []MediaInfo
	for _, m := range f.media {
		if flt.Family != "" && m.Family != flt.Family {
			continue
		}
		if flt.AdminStatus != "" && m.AdminStatus != flt.AdminStatus {
			continue
		}
		if m.Stats.PhysSpcFree < flt.MinFree {
			continue
		}
		excluded := false
		for _, st := range flt.ExcludeFSState {
			if m.FSStatus == st {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}
		if !hasAllTags(m.Tags, flt.Tags) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
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

func (f *Fake) GetMedium(ctx context.Context, id ByID) (*MediaInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.media[id.ID]
	if !ok {
		return nil, lrserr.ErrNotFound
	}
	return m.Clone(), nil
}

func (f *Fake) LockDevice(ctx context.Context, id ByID, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id.ID]
	if !ok {
		return lrserr.ErrNotFound
	}
	if d.LockOwner != "" && d.LockOwner != owner {
		return lrserr.ErrAgain
	}
	d.LockOwner = owner
	f.devices[id.ID] = d
	return nil
}

func (f *Fake) UnlockDevice(ctx context.Context, id ByID, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id.ID]
	if !ok {
		return lrserr.ErrNotFound
	}
	if d.LockOwner != "" && d.LockOwner != owner {
		return lrserr.ErrInvalid
	}
	d.LockOwner = ""
	f.devices[id.ID] = d
	return nil
}

func (f *Fake) LockMedia(ctx context.Context, id ByID, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.media[id.ID]
	if !ok {
		return lrserr.ErrNotFound
	}
	if m.LockOwner != "" && m.LockOwner != owner {
		return lrserr.ErrAgain
	}
	m.LockOwner = owner
	f.media[id.ID] = m
	return nil
}

func (f *Fake) UnlockMedia(ctx context.Context, id ByID, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.media[id.ID]
	if !ok {
		return lrserr.ErrNotFound
	}
	if m.LockOwner != "" && m.LockOwner != owner {
		return lrserr.ErrInvalid
	}
	m.LockOwner = ""
	f.media[id.ID] = m
	return nil
}

func (f *Fake) UpdateMedia(ctx context.Context, m MediaInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.media[m.ID]; !ok {
		return lrserr.ErrNotFound
	}
	f.media[m.ID] = m
	return nil
}

// FindObjectMedium resolves oid/uuid/version to the medium holding it.
// version == 0 means the latest version of the resolved uuid; ambiguity is
// an oid matching more than one distinct uuid, never several versions on
// file for the same uuid.
func (f *Fake) FindObjectMedium(ctx context.Context, oid, uuid string, version int) (ByID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	latest := map[string]objectRecord{} // uuid -> highest matching version seen
	for _, rec := range f.objects {
		if oid != "" && rec.oid != oid {
			continue
		}
		if uuid != "" && rec.uuid != uuid {
			continue
		}
		if version != 0 && rec.version != version {
			continue
		}
		if best, ok := latest[rec.uuid]; !ok || rec.version > best.version {
			latest[rec.uuid] = rec
		}
	}

	switch len(latest) {
	case 0:
		return ByID{}, lrserr.ErrNotFound
	case 1:
		for _, rec := range latest {
			return rec.medium, nil
		}
	}
	return ByID{}, lrserr.ErrAmbiguous
}
