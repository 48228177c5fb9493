package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"lrsd/internal/config"
	"lrsd/internal/dss"
	"lrsd/internal/ldm"
	"lrsd/internal/log"
	"lrsd/internal/metrics"
)

var allOpStatuses = []string{
	StatusUnspec.String(), StatusEmpty.String(), StatusLoaded.String(),
	StatusMounted.String(), StatusFailed.String(),
}

// Cache is the in-memory device cache: a vector of
// device descriptors mirroring the host's usable drives, refreshed from
// DSS and the library/FS adapters.
type Cache struct {
	store    dss.Store
	adapters ldm.Adapters
	cfg      *config.Config
	host     string
	logger   zerolog.Logger

	devices []*Device
}

// NewCache builds an empty device cache bound to a DSS store and one
// family's adapter set.
func NewCache(store dss.Store, adapters ldm.Adapters, cfg *config.Config, host string) *Cache {
	return &Cache{
		store:    store,
		adapters: adapters,
		cfg:      cfg,
		host:     host,
		logger:   log.WithComponent("cache"),
	}
}

// Devices returns the live device slice. Callers must not retain it past
// the next Refresh/DeviceAdd.
func (c *Cache) Devices() []*Device {
	return c.devices
}

// Refresh guarantees the cache reflects this host's admin-unlocked devices
// of the configured family, live library and OS view.
// On first call the cache is populated from a filtered DSS query; on
// subsequent calls entries are neither added nor removed, only refreshed
// in place.
func (c *Cache) Refresh(ctx context.Context) error {
	if len(c.devices) == 0 {
		rows, err := c.store.GetDevices(ctx, dss.DeviceFilter{
			Host:        c.host,
			Family:      c.cfg.LRS.DefaultFamily,
			AdminStatus: dss.AdminUnlocked,
		})
		if err != nil {
			return err
		}
		for _, row := range rows {
			c.devices = append(c.devices, &Device{
				Family:      row.Family,
				Serial:      row.Serial,
				Model:       row.Model,
				Host:        row.Host,
				AdminStatus: row.AdminStatus,
				Path:        row.Serial,
				Status:      StatusUnspec,
			})
		}
	}

	for _, d := range c.devices {
		c.refreshOne(ctx, d)
		c.reportMetrics(d)
	}
	return nil
}

func (c *Cache) reportMetrics(d *Device) {
	metrics.SetDeviceStatus(d.Serial, d.Family, allOpStatuses, d.Status.String())
	if d.Medium != nil {
		metrics.MediumFreeBytes.WithLabelValues(d.Medium.ID, d.Medium.Family).Set(float64(d.Medium.Stats.PhysSpcFree))
	}
}

// DeviceAdd fetches a device's canonical row from DSS and appends it to the
// cache, running the same refresh a startup scan would. The row is read
// back from the store rather than trusted from the caller, since a device
// is only usable once it exists in DSS regardless of who triggered the add.
func (c *Cache) DeviceAdd(ctx context.Context, id dss.ByID) (*Device, error) {
	row, err := c.store.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &Device{
		Family:      row.Family,
		Serial:      row.Serial,
		Model:       row.Model,
		Host:        row.Host,
		AdminStatus: row.AdminStatus,
		Path:        row.Serial,
		Status:      StatusUnspec,
	}
	c.devices = append(c.devices, d)
	c.refreshOne(ctx, d)
	c.reportMetrics(d)
	return d, nil
}

// refreshOne refreshes a single device's live view, demoting it to
// StatusFailed on any inconsistency without failing the whole refresh.
func (c *Cache) refreshOne(ctx context.Context, d *Device) {
	devLogger := log.WithDevice(c.logger, d.Path)

	if d.LockedLocal {
		// A device we currently hold is mid-use by an intent; its Status
		// is authoritative from the mount/load state machine, not from a
		// blind library re-query.
		return
	}

	state, err := c.adapters.Device.Query(ctx, d.Path)
	if err != nil {
		log.LogOnErr(devLogger, err, "device query failed")
		d.Status = StatusFailed
		return
	}

	if state.Model != "" && d.Model != "" && state.Model != d.Model {
		devLogger.Warn().Str("dss_model", d.Model).Str("os_model", state.Model).
			Msg("device model mismatch between DSS and OS")
		d.Status = StatusFailed
		return
	}

	if state.LoadedVol == "" {
		d.Medium = nil
		d.MountPath = ""
		d.Status = StatusEmpty
		return
	}

	if d.Medium == nil || d.Medium.ID != state.LoadedVol {
		medium, err := c.store.GetMedium(ctx, dss.ByID{Family: d.Family, ID: state.LoadedVol})
		if err != nil {
			log.LogOnErr(log.WithMedium(devLogger, state.LoadedVol), err, "loaded medium missing from DSS")
			d.Status = StatusFailed
			return
		}
		d.Medium = medium
	}

	mountPath := mountPathFor(c.cfg.LRS.MountPrefix, d.Path)
	mounted, err := c.adapters.FS.MountedAt(ctx, d.Path, mountPath)
	if err != nil {
		log.LogOnErr(devLogger, err, "mount probe failed")
		d.Status = StatusFailed
		return
	}
	if mounted {
		d.MountPath = mountPath
		d.Status = StatusMounted
	} else {
		d.MountPath = ""
		d.Status = StatusLoaded
	}
}
