// Package app wires configuration, logging, engines and services into one
// runnable process.
package app

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"botswarm/internal/browser"
	"botswarm/internal/config"
	"botswarm/internal/dispatch"
	"botswarm/internal/eventbus"
	"botswarm/internal/metrics"
	"botswarm/internal/observability/pprof"
	"botswarm/internal/runtime/supervisor"
	"botswarm/internal/schedule"
	"botswarm/internal/server"
	"botswarm/internal/storage"
	"botswarm/internal/token"
	logx "botswarm/pkg/logx"
)

// Environment overrides for signing material. They take precedence over the
// config file so secrets can stay out of it.
const (
	envSDKKey    = "BOTSWARM_SDK_KEY"
	envSDKSecret = "BOTSWARM_SDK_SECRET"
	envOrigin    = "BOTSWARM_ORIGIN"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	issuer   *token.Issuer
	exporter *metrics.Exporter
	dispatch *dispatch.Service
	sched    *schedule.Service
	pprof    *pprof.Service

	srvOpts server.Options
	srvDeps server.Deps
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if cfg.Storage != nil {
		sc, err := mapStorageConfig(cfg.Storage)
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		if st != nil {
			store = st
			log.Info("storage enabled", logx.String("driver", sc.Driver))
		}
	}

	key, secret, origin := signingMaterial(cfg)
	issuer := token.NewIssuer(key, secret, token.NewMemoryCache())

	engines, err := mapEngines(cfg.Browsers)
	if err != nil {
		return nil, err
	}

	var exporter *metrics.Exporter
	var dispMetrics dispatch.Metrics
	if cfg.Metrics.Enabled {
		exporter = metrics.NewExporter("botswarm")
		dispMetrics = exporter
	}

	dispOpts, err := mapDispatchOptions(cfg, origin)
	if err != nil {
		return nil, err
	}

	var recorder dispatch.Recorder
	if store != nil {
		recorder = storage.NewHistoryRecorder(store)
	}
	dispatchSvc := dispatch.NewService(issuer, engines, bus, recorder, dispMetrics, dispOpts,
		log.With(logx.String("comp", "dispatch")))

	schedSvc := schedule.New(dispatchSvc, bus, mapScheduleConfig(cfg),
		log.With(logx.String("comp", "scheduler")))

	srvOpts, err := mapServerOptions(cfg.Server)
	if err != nil {
		return nil, err
	}
	var metricsHandler http.Handler
	if exporter != nil {
		metricsHandler = exporter.Handler()
	}

	pprofSvc := pprof.New(pprof.Config{
		Enabled: cfg.Pprof.Enabled,
		Addr:    cfg.Pprof.Addr,
		Token:   cfg.Pprof.Token,
	}, log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		issuer:   issuer,
		exporter: exporter,
		dispatch: dispatchSvc,
		sched:    schedSvc,
		pprof:    pprofSvc,
		srvOpts:  srvOpts,
		srvDeps: server.Deps{
			Dispatcher: dispatchSvc,
			Store:      store,
			Metrics:    metricsHandler,
			Log:        log.With(logx.String("comp", "http")),
		},
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
			return cfg.Validate()
		})
		a.sup.GoRestart("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}

	if a.sched != nil {
		a.sched.Start(a.sup.Context())
	}

	if a.pprof != nil && a.pprof.Enabled() {
		a.sup.Go("pprof.server", func(c context.Context) error {
			return a.pprof.Run(c)
		})
	}

	deps := a.srvDeps
	deps.Supervisor = a.sup
	httpSrv := server.New(a.srvOpts, server.NewRouter(deps), deps.Log)
	a.sup.Go("http.server", func(c context.Context) error {
		return httpSrv.Run(c)
	})

	// hot reload fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(newCfg)
			}
		}
	})

	// Event log for observability/debug.
	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	_, _, origin := signingMaterial(cfg)
	if opts, err := mapDispatchOptions(cfg, origin); err != nil {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	} else {
		a.dispatch.Apply(opts)
	}

	a.sched.Apply(mapScheduleConfig(cfg))

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sched != nil {
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	}
	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	a.log.Info("app stopped")
	return err
}

// signingMaterial resolves key/secret/origin, env first.
func signingMaterial(cfg *config.Config) (key, secret, origin string) {
	key = strings.TrimSpace(os.Getenv(envSDKKey))
	if key == "" {
		key = cfg.Signing.SDKKey
	}
	secret = strings.TrimSpace(os.Getenv(envSDKSecret))
	if secret == "" {
		secret = cfg.Signing.SDKSecret
	}
	origin = strings.TrimSpace(os.Getenv(envOrigin))
	if origin == "" {
		origin = cfg.Signing.Origin
	}
	return key, secret, origin
}

// mapEngines builds the engine set from driver commands. Dry-run replaces
// every driver with an in-process fake.
func mapEngines(cfg config.BrowsersConfig) (browser.Set, error) {
	set := browser.Set{}
	if cfg.DryRun {
		for _, k := range browser.Kinds() {
			set[k] = browser.NewFake(k)
		}
		return set, nil
	}
	commands := map[browser.Kind][]string{
		browser.KindChromium: cfg.Chromium.Command,
		browser.KindFirefox:  cfg.Firefox.Command,
		browser.KindWebkit:   cfg.Webkit.Command,
	}
	for kind, argv := range commands {
		if len(argv) == 0 {
			continue
		}
		d, err := browser.NewDriver(kind, argv)
		if err != nil {
			return nil, err
		}
		set[kind] = d
	}
	return set, nil
}
