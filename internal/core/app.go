// Package core assembles the application: configuration, logging, storage,
// the delivery pipeline, the analytics engine, the job families, and the
// admin API, with config hot reload wired through to the running services.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"focusd/internal/analytics"
	"focusd/internal/api"
	"focusd/internal/cache"
	"focusd/internal/clock"
	"focusd/internal/config"
	"focusd/internal/eventbus"
	"focusd/internal/jobs"
	analyticsjobs "focusd/internal/jobs/analytics"
	"focusd/internal/jobs/reminder"
	"focusd/internal/notify"
	"focusd/internal/notify/channel"
	"focusd/internal/scheduler"
	"focusd/internal/services/logging"
	"focusd/internal/storage"
	"focusd/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logging.Service
	log    *slog.Logger
	clk    clock.Clock

	store    storage.Store
	bus      eventbus.Bus
	recorder *eventbus.Recorder
	hub      *channel.Hub
	cache    *cache.Cache
	pipeline *notify.Service
	engine   *analytics.Service
	manager  *jobs.Manager
	admin    *api.Server

	sup     *Supervisor
	started bool
}

func NewApp(cfgPath string) (*App, error) {
	cfgMgr := config.NewManager(cfgPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logging.FileConfig(cfg.Logging.File),
	})
	cfgMgr.SetLogger(logx.NewConsole(cfg.Logging.Level))
	cfgMgr.SetValidator(validateConfig)

	a := &App{
		cfgMgr: cfgMgr,
		logSvc: logSvc,
		log:    log,
		clk:    clock.System(),
	}
	if err := a.build(cfg); err != nil {
		logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, a.log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.store = store

	a.bus = eventbus.New()
	a.recorder = eventbus.NewRecorder(a.bus, 200)
	a.hub = channel.NewHub(a.log)

	sweep, err := config.ParseDurationOrDefault("cache.sweep_interval", cfg.Cache.SweepInterval, 10*time.Minute)
	if err != nil {
		return err
	}
	a.cache = cache.New(a.clk, a.log, sweep)
	a.engine = analytics.New(store, a.cache, a.clk, a.log)

	senders, extraChannels, err := a.buildSenders(cfg)
	if err != nil {
		return err
	}
	notifyCfg, err := notifyConfig(cfg)
	if err != nil {
		return err
	}
	a.pipeline = notify.New(notifyCfg, senders, a.log, a.clk, a.bus)

	families, err := a.buildFamilies(cfg, extraChannels)
	if err != nil {
		return err
	}
	a.manager = jobs.NewManager(jobs.Config{}, a.log, families...)

	if cfg.Admin.Enabled {
		a.admin = api.New(cfg.Admin, a.log, a.manager, a.pipeline, a.engine, a.hub, a.cache, a.recorder)
	}
	return nil
}

// buildSenders wires the configured delivery channels. Telegram is
// additive: when enabled its channel is appended to every job-produced
// envelope.
func (a *App) buildSenders(cfg *config.Config) (notify.Senders, []notify.Channel, error) {
	senders := notify.Senders{
		Realtime:      a.hub,
		Subscriptions: a.store,
		Preferences:   a.store,
		Extra:         map[notify.Channel]notify.Sender{},
	}
	var extra []notify.Channel

	if cfg.Notify.Push.Enabled {
		timeout, err := config.ParseDurationOrDefault("notify.push.timeout", cfg.Notify.Push.Timeout, 10*time.Second)
		if err != nil {
			return notify.Senders{}, nil, err
		}
		senders.Push = channel.NewHTTPPush(timeout)
	}
	if cfg.Notify.Email.Enabled {
		senders.Email = channel.NewSMTPEmail(channel.SMTPConfig{
			Host:     cfg.Notify.Email.Host,
			Port:     cfg.Notify.Email.Port,
			From:     cfg.Notify.Email.From,
			Username: cfg.Notify.Email.Username,
			Password: cfg.Notify.Email.Password,
		}, a.store)
	}
	if cfg.Notify.Telegram.Enabled {
		tg, err := channel.NewTelegram(cfg.Notify.Telegram.Token, a.store)
		if err != nil {
			return notify.Senders{}, nil, fmt.Errorf("telegram channel: %w", err)
		}
		senders.Extra[notify.ChannelTelegram] = tg
		extra = append(extra, notify.ChannelTelegram)
	}
	return senders, extra, nil
}

func (a *App) buildFamilies(cfg *config.Config, extraChannels []notify.Channel) ([]*scheduler.Registry, error) {
	tz := cfg.Scheduler.Timezone
	enabled := func(name string) bool {
		fc, ok := cfg.Scheduler.Families[name]
		return !ok || fc.IsEnabled()
	}

	var families []*scheduler.Registry
	if enabled(reminder.Family) {
		r, err := reminder.NewRegistry(reminder.Config{ExtraChannels: extraChannels},
			tz, a.store, a.pipeline, a.engine, a.clk, a.log, a.bus)
		if err != nil {
			return nil, fmt.Errorf("build %s family: %w", reminder.Family, err)
		}
		families = append(families, r)
	}
	if enabled(analyticsjobs.Family) {
		r, err := analyticsjobs.NewRegistry(analyticsjobs.Config{
			ArchiveAfter: days(cfg.Retention.ArchiveAfterDays),
			PurgeAfter:   days(cfg.Retention.PurgeAfterDays),
		}, tz, a.store, a.engine, a.cache, nil, a.clk, a.log, a.bus)
		if err != nil {
			return nil, fmt.Errorf("build %s family: %w", analyticsjobs.Family, err)
		}
		families = append(families, r)
	}
	return families, nil
}

func (a *App) Manager() *jobs.Manager { return a.manager }

func (a *App) Logger() *slog.Logger { return a.log }

// Done is closed when a supervised goroutine fails fatally (or on Stop).
// Only valid after Start.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		return nil
	}
	return a.sup.Context().Done()
}

func (a *App) Start(ctx context.Context) error {
	if a.started {
		return nil
	}
	a.started = true

	a.sup = NewSupervisor(ctx, a.log)
	runCtx := a.sup.Context()

	a.cache.Start(runCtx)
	if a.pipeline.Enabled() {
		a.pipeline.Start(runCtx)
	}
	if err := a.manager.Initialize(runCtx); err != nil {
		return err
	}
	if a.admin != nil {
		if err := a.admin.Start(); err != nil {
			return fmt.Errorf("admin server: %w", err)
		}
	}

	a.sup.Go("config.watch", func(ctx context.Context) error {
		err := a.cfgMgr.Watch(ctx)
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	})
	updates := a.cfgMgr.Subscribe(1)
	a.sup.Go("config.apply", func(ctx context.Context) error {
		defer a.cfgMgr.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return nil
			case cfg, ok := <-updates:
				if !ok {
					return nil
				}
				a.applyConfig(cfg)
			}
		}
	})

	a.log.Info("focusd started")
	return nil
}

// applyConfig hot-applies the reloadable subset: log level and sinks,
// queue drain parameters. Structural changes (storage path, channel
// wiring, schedules) need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	a.logSvc.Apply(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logging.FileConfig(cfg.Logging.File),
	})
	if nc, err := notifyConfig(cfg); err == nil {
		a.pipeline.Apply(nc)
	} else {
		a.log.Warn("notify config not applied", slog.Any("err", err))
	}
	a.log.Info("config applied")
}

func (a *App) Stop(ctx context.Context) error {
	if !a.started {
		return nil
	}
	a.started = false

	if a.admin != nil {
		if err := a.admin.Stop(ctx); err != nil {
			a.log.Warn("admin shutdown", slog.Any("err", err))
		}
	}
	_ = a.manager.Shutdown(ctx)
	a.pipeline.Stop(ctx)
	a.cache.Stop()
	a.recorder.Close()

	err := a.sup.Stop(ctx)

	if cerr := a.store.Close(); cerr != nil {
		a.log.Warn("store close", slog.Any("err", cerr))
	}
	a.log.Info("focusd stopped")
	a.logSvc.Close()
	return err
}

func notifyConfig(cfg *config.Config) (notify.Config, error) {
	interval, err := config.ParseDurationOrDefault("notify.drain_interval", cfg.Notify.DrainInterval, 5*time.Second)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Enabled:       cfg.Notify.IsEnabled(),
		DrainInterval: interval,
		BatchSize:     cfg.Notify.BatchSize,
		RatePerSec:    cfg.Notify.RatePerSec,
	}, nil
}

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

// validateConfig rejects reloads that would break the running services.
func validateConfig(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, err := config.ParseDurationField("notify.drain_interval", cfg.Notify.DrainInterval); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("cache.sweep_interval", cfg.Cache.SweepInterval); err != nil {
		return err
	}
	if cfg.Notify.BatchSize < 0 {
		return fmt.Errorf("notify.batch_size must be >= 0")
	}
	return nil
}
