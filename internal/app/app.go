// Package app wires the bot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"mediabot/internal/commands"
	"mediabot/internal/config"
	"mediabot/internal/eventbus"
	"mediabot/internal/fanout"
	"mediabot/internal/maintenance"
	"mediabot/internal/metrics"
	"mediabot/internal/notifier"
	"mediabot/internal/runtime/supervisor"
	"mediabot/internal/storage"
	"mediabot/internal/subscription"
	kit "mediabot/internal/transport"
	telegram "mediabot/internal/transport/telegram/adapter"
	"mediabot/internal/transport/telegram/router"
	"mediabot/internal/webhook"
	logx "mediabot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter  *telegram.Adapter
	notif    *notifier.Service
	dispatch *fanout.Dispatcher
	cmdm     *router.CommandManager
	handlers *commands.Handlers
	maint    *maintenance.Service
	metrics  *metrics.Metrics
	web      *webhook.Server

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(mapLogConfig(cfg))
	comp := func(name string) logx.Logger { return log.With(logx.String("comp", name)) }

	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout(cfg),
		Channels:    cfg.ChannelTargets(),
		Brand:       brandName(cfg),
	}, comp("telegram"))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logs.SetChatSink(ad)

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	store, err := storage.Open(sc, comp("storage"))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", strings.ToLower(sc.Driver)))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}

	bus := eventbus.New()
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	registry := subscription.NewRegistry(store, comp("subscription"))
	notif := notifier.New(ncfg, ad, comp("notifier"), bus)
	dispatch := fanout.New(fanout.Deps{
		Resolver:      ad,
		Deliverer:     notif,
		Subscriptions: registry,
		Logger:        comp("fanout"),
		Metrics:       m,
		Bus:           bus,
		Parallel:      cfg.Notifier.FanoutParallel,
	})

	maintainer, _ := store.(storage.Maintainer)
	maint := maintenance.New(maintainer, comp("maintenance"), bus)

	handlers := commands.New(commands.Deps{
		Registry:   registry,
		Metrics:    m,
		Logger:     comp("commands"),
		Notifier:   notif,
		Dispatcher: dispatch,
	})
	cmdm := router.NewCommandManager(comp("router"), ad, cfgm.Get)
	cmdm.SetRegistry(handlers.Commands(), handlers.Callbacks())

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
	}
	wh := webhook.NewHandler(webhook.Deps{
		Dispatcher: dispatch,
		Config:     cfgm.Get,
		Metrics:    m,
		Logger:     comp("webhook"),
	})

	return &App{
		cfgm:     cfgm,
		log:      comp("app"),
		logs:     logs,
		bus:      bus,
		store:    store,
		adapter:  ad,
		notif:    notif,
		dispatch: dispatch,
		cmdm:     cmdm,
		handlers: handlers,
		maint:    maint,
		metrics:  m,
		web:      webhook.NewServer(wh.Routes(metricsPath), comp("webhook")),
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed once the app stops, by Stop or by a fatal task error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.handlers.SetSupervisor(a.sup)
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := mapNotifierConfig(cfg)
		return err
	})
	cfg := a.cfgm.Get()

	if err := a.web.Start(cfg.Webhook); err != nil {
		return fmt.Errorf("webhook listen: %w", err)
	}
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if err := a.maint.Start(a.sup.Context(), cfg.Storage.CompactSchedule); err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("commands.menu", func(c context.Context) {
		if err := a.cmdm.SyncMenu(c); err != nil {
			a.log.Warn("command menu sync failed", logx.Err(err))
		}
	})

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

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified ready")
	}
	a.log.Info("app started", logx.String("webhook_addr", a.web.Addr()))
	return nil
}

// applyConfig pushes a reloaded config into every hot-reloadable
// component. Sections that need a restart are only logged.
func (a *App) applyConfig(prev, next *config.Config) {
	change := config.SummarizeConfigChange(prev, next)
	if change.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(next))
	a.adapter.Apply(next.ChannelTargets(), brandName(next))
	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}
	a.dispatch.SetParallel(next.Notifier.FanoutParallel)
	if err := a.maint.Apply(next.Storage.CompactSchedule); err != nil {
		a.log.Warn("invalid compact schedule; keeping previous", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Attrs...)
	a.log.Info("config reloaded", fields...)
	if len(change.RestartRequired) > 0 {
		a.log.Warn("restart required for some changes", logx.String("sections", strings.Join(change.RestartRequired, ",")))
	}
}

// Stop shuts components down in dependency order, each step bounded so
// one component cannot stall the rest.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Webhook first so no new dispatch starts while the rest winds down.
	step("webhook", 5*time.Second, a.web.Shutdown)
	a.sup.Cancel()
	step("maintenance", 2*time.Second, func(c context.Context) error { a.maint.Stop(c); return nil })
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("supervisor", 3*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}
