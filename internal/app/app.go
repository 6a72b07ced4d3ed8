// Package app wires config, storage, delivery channels and the scheduler
// into one process and keeps them in step with config reloads.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"eventsched/internal/config"
	"eventsched/internal/dispatch"
	"eventsched/internal/eventbus"
	"eventsched/internal/events"
	"eventsched/internal/observability/debugsrv"
	"eventsched/internal/retention"
	"eventsched/internal/runtime/supervisor"
	"eventsched/internal/scheduler"
	"eventsched/internal/storage"
	logx "eventsched/pkg/logx"
)

type App struct {
	cfgm *config.Manager // nil when running on defaults
	cfg  *config.Config
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	repo  *events.Repo

	dispatcher *dispatch.Dispatcher
	cleaner    *retention.Cleaner
	sched      *scheduler.Service

	schedOpts []scheduler.Option
}

type Option func(*App)

// WithSchedulerOptions forwards options (clock, id source) to the scheduler.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(a *App) { a.schedOpts = append(a.schedOpts, opts...) }
}

// New loads cfgPath and builds the engine. An empty path runs on
// config.Default() without a file watcher.
func New(cfgPath string, opts ...Option) (*App, error) {
	var (
		cfgm *config.Manager
		cfg  *config.Config
	)
	if cfgPath == "" {
		cfg = config.Default()
	} else {
		cfgm = config.NewManager(cfgPath)
		c, err := cfgm.Load()
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	a, err := build(cfg, opts...)
	if err != nil {
		return nil, err
	}
	a.cfgm = cfgm
	return a, nil
}

func build(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	a.logs = logSvc
	a.log = log.With(logx.String("comp", "app"))

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	window, err := cfg.Scheduler.RetentionWindow()
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.store = store
	a.repo = events.NewRepo(store)
	a.bus = eventbus.New()

	channels := buildChannels(cfg, a.repo, a.bus, log)
	a.dispatcher = dispatch.New(mapDispatchConfig(cfg, loc), a.repo, channels, log, a.bus)
	a.cleaner = retention.New(window, a.repo, log)
	a.sched = scheduler.New(mapSchedulerConfig(cfg, loc), a.repo, a.dispatcher, a.cleaner, log, a.schedOpts...)

	a.log.Info("engine configured",
		logx.String("storage", sc.Driver),
		logx.String("tz", loc.String()),
		logx.Duration("retention", window),
		logx.Int("channels", len(channels.Methods())),
	)
	return a, nil
}

// Scheduler is the caller-facing API (AddEvent, UpdateEvent, status, ticks).
func (a *App) Scheduler() *scheduler.Service { return a.sched }

func (a *App) Repo() *events.Repo { return a.repo }

func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	// a.cfg belongs to the reload goroutine once it runs
	debugCfg := a.cfg.Debug
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if err := a.sched.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return err
	}

	tap, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-tap:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data), logx.Time("time", e.Time))
			}
		}
	})

	if debugCfg.Enabled {
		srv := debugsrv.New(debugsrv.Config{Addr: debugCfg.Addr, Token: debugCfg.Token},
			func() any { return a.sched.Status() }, a.log)
		a.sup.GoRestart("debug.http", srv.Serve, 500*time.Millisecond, 10*time.Second)
	}

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
			// schedules are only checked when compiled
			if err := checkSchedule(cfg.Scheduler.DispatchSchedule, scheduler.DefaultDispatchSchedule); err != nil {
				return fmt.Errorf("scheduler.dispatch_schedule: %w", err)
			}
			if err := checkSchedule(cfg.Scheduler.CleanupSchedule, scheduler.DefaultCleanupSchedule); err != nil {
				return fmt.Errorf("scheduler.cleanup_schedule: %w", err)
			}
			return nil
		})

		sub := a.cfgm.Subscribe(8)
		a.sup.Go("config.reload", func(c context.Context) error {
			defer a.cfgm.Unsubscribe(sub)
			for {
				select {
				case <-c.Done():
					return nil
				case newCfg, ok := <-sub:
					if !ok {
						return nil
					}
					a.applyConfig(newCfg)
				}
			}
		})
		a.sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)
	}

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a reloaded config into the running components.
// Storage and the channel set are only read at start.
func (a *App) applyConfig(newCfg *config.Config) {
	if newCfg == nil {
		return
	}
	sections, fields := config.SummarizeChange(a.cfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		a.cfg = newCfg
		return
	}
	if config.RequiresRestart(a.cfg, newCfg) {
		a.log.Warn("storage, channel or debug config changed; restart required for changes to take effect")
	}
	a.cfg = newCfg

	a.logs.Apply(mapLogConfig(newCfg))

	loc, err := newCfg.Scheduler.Location()
	if err != nil {
		a.log.Warn("invalid timezone; keeping previous", logx.Err(err))
		loc = a.sched.Location()
	}
	a.dispatcher.Apply(mapDispatchConfig(newCfg, loc))

	if window, err := newCfg.Scheduler.RetentionWindow(); err != nil {
		a.log.Warn("invalid retention; keeping previous", logx.Err(err))
	} else {
		a.cleaner.SetWindow(window)
	}

	if err := a.sched.Apply(mapSchedulerConfig(newCfg, loc)); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	}

	a.log.Info("config applied", append([]logx.Field{logx.Any("changed", sections)}, fields...)...)
}

// Stop halts the ticks, waits for supervised goroutines and closes storage.
// Each step is bounded so one component cannot stall the rest.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return a.close()
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.close()
}

func (a *App) close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

func checkSchedule(raw, def string) error {
	if strings.TrimSpace(raw) == "" {
		raw = def
	}
	ps, err := scheduler.ParseSchedule(raw)
	if err != nil {
		return err
	}
	_, err = ps.Schedule()
	return err
}
