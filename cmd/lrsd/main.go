// Command lrsd runs the Local Resource Scheduler daemon: it builds the
// scheduler over one host's tape drives, autochanger, and on-disk
// directories, loads its device cache, and serves a Prometheus metrics
// endpoint until interrupted. The orchestrator's write_prepare/
// read_prepare/format/io_complete/resource_release/locate operations are
// not exposed over any endpoint by this command.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"lrsd/internal/config"
	"lrsd/internal/dss"
	"lrsd/internal/ldm"
	"lrsd/internal/log"
	"lrsd/internal/scheduler"
)

const (
	defaultDB     = "./lrsd.db"
	defaultListen = ":9090"
)

func main() {
	configFile := flag.String("config", "", "YAML/TOML config file; falls back to a dir-family default config")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	simulate := flag.Bool("simulate", false, "run against in-memory fake adapters instead of real hardware")
	dbPath := flag.String("db", defaultDB, "path to the DSS SQLite database (ignored with -simulate)")
	listen := flag.String("listen", defaultListen, "address to serve /metrics on")
	host := flag.String("host", "", "this host's identity in the DSS device table; defaults to os.Hostname()")
	status := flag.Bool("status", false, "print the device cache and exit, instead of serving")
	dumpConfig := flag.Bool("dump-config", false, "print the effective configuration as YAML and exit")
	flag.Parse()

	log.Init(log.Config{Level: log.Level(*logLevel)})
	logger := log.WithComponent("main")

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("load configuration")
	}

	if *dumpConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("marshal effective configuration")
		}
		os.Stdout.Write(out)
		return
	}

	hostname := *host
	if hostname == "" {
		hostname, err = os.Hostname()
		if err != nil {
			logger.Fatal().Err(err).Msg("resolve hostname")
		}
	}

	store, closeStore, err := openStore(*simulate, *dbPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open DSS store")
	}
	defer closeStore()

	registry := buildRegistry(*simulate, cfg)
	adapters, err := registry.ForFamily(cfg.LRS.DefaultFamily)
	if err != nil {
		logger.Fatal().Err(err).Msg("resolve adapters for default family")
	}

	sched := scheduler.New(store, adapters, cfg, hostname, os.Getpid())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sched.Init(ctx); err != nil {
		logger.Fatal().Err(err).Msg("initial device cache refresh")
	}

	if *status {
		printStatus(os.Stdout, sched)
		return
	}

	srv := &http.Server{Addr: *listen, Handler: promhttp.Handler()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("listen", *listen).Str("host", hostname).Bool("simulate", *simulate).Msg("lrsd ready")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	srv.Shutdown(ctx)
	sched.Fini(ctx)
}

// openStore opens the real SQLite-backed DSS, or an empty in-memory fake
// seeded with a couple of demo rows under -simulate.
func openStore(simulate bool, dbPath string) (dss.Store, func(), error) {
	if simulate {
		fake := dss.NewFake()
		seedFake(fake)
		return fake, func() {}, nil
	}
	sqliteStore, err := dss.OpenSQLite(dbPath)
	if err != nil {
		return nil, nil, err
	}
	return sqliteStore, func() { sqliteStore.Close() }, nil
}

func seedFake(fake *dss.Fake) {
	fake.PutDevice(dss.DeviceInfo{ID: "dir0", Family: "dir", Serial: "/var/lib/lrsd/dir0", Model: "fake", Host: mustHostname(), AdminStatus: dss.AdminUnlocked})
	fake.PutMedium(dss.MediaInfo{ID: "vol000001", Family: "dir", FSStatus: dss.FSStatusBlank, Stats: dss.MediaStats{PhysSpcFree: 10 << 30}})
}

func mustHostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}

// buildRegistry wires up both device families' adapter sets: the real
// mtx/ltfs-backed tape family and the native directory-tree dir family,
// or their in-memory fakes under -simulate.
func buildRegistry(simulate bool, cfg *config.Config) *ldm.Registry {
	registry := ldm.NewRegistry()
	if simulate {
		lib := ldm.NewFakeLibrary()
		registry.Register("tape", ldm.Adapters{
			Device:  ldm.NewFakeDevice(lib),
			Library: lib,
			FS:      ldm.NewFakeFS(),
			IO:      ldm.NewFakeIO(),
		})
		registry.Register("dir", ldm.Adapters{
			Device:  ldm.NewFakeDevice(lib),
			Library: lib,
			FS:      ldm.NewFakeFS(),
			IO:      ldm.NewFakeIO(),
		})
		return registry
	}

	tapeLib := ldm.NewTapeLibrary(cfg.LRS.LibDevice, nil)
	registry.Register("tape", ldm.Adapters{
		Device:  ldm.NewTapeDevice(tapeLib),
		Library: tapeLib,
		FS:      ldm.NewTapeFS(),
		IO:      ldm.NewFSFlush(),
	})
	registry.Register("dir", ldm.Adapters{
		Device:  ldm.NewDirDevice(),
		Library: ldm.NewDirLibrary(),
		FS:      ldm.NewDirFS(),
		IO:      ldm.NewFSFlush(),
	})
	return registry
}

// printStatus renders the live device cache as a table, free space shown
// in human-readable units.
func printStatus(w *os.File, sched *scheduler.Scheduler) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Serial", "Family", "Model", "Status", "Mount", "Medium", "Free"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)

	for _, d := range sched.Devices() {
		medium, free, mount := "-", "-", "-"
		if d.Medium != nil {
			medium = d.Medium.ID
			free = humanize.Bytes(uint64(d.Medium.Stats.PhysSpcFree))
		}
		if d.MountPath != "" {
			mount = d.MountPath
		}
		table.Append([]string{d.Serial, d.Family, d.Model, d.Status.String(), mount, medium, free})
	}
	table.Render()
}
