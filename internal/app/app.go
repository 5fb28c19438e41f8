package app

import (
	"context"
	"fmt"
	"sync"

	"statebot/internal/command"
	"statebot/internal/config"
	"statebot/internal/dispatch"
	"statebot/internal/eventbus"
	"statebot/internal/forward"
	"statebot/internal/kit"
	"statebot/internal/report"
	"statebot/internal/rules"
	"statebot/internal/storage"
	"statebot/internal/transport/telegram"
	logx "statebot/pkg/logx"
)

// App wires the forwarder: config manager, logging, event bus, delivery
// store, Telegram sender, dispatcher, forward service, operator commands and
// the daily report.
type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	bus   eventbus.Bus
	store storage.Store

	sender *telegram.Sender
	disp   *dispatch.Dispatcher
	fwd    *forward.Service
	rep    *report.Service
	cmds   *command.Service // nil when commands are disabled

	watchCancel context.CancelFunc
	watchWG     sync.WaitGroup
	cfgCh       chan *config.Config
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logSvc.Logger().With(logx.String("comp", "config")))

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if cfg.Storage != nil {
		sc, err := mapStorageConfig(cfg.Storage)
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(sc, logSvc.Logger().With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		if st != nil {
			store = st
			log.Info("storage enabled", logx.String("driver", sc.Driver))
		}
	}

	sender, err := telegram.New(telegram.Config{
		Token:      cfg.Telegram.Token,
		RatePerSec: cfg.Telegram.RatePerSec,
	}, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	disp := dispatch.New(dispatch.Config{ChatID: cfg.Telegram.ChatID},
		sender, store, bus, logSvc.Logger().With(logx.String("comp", "dispatch")))

	set, err := mapForwardSettings(cfg)
	if err != nil {
		return nil, err
	}
	fwd := forward.New(set, disp, bus, logSvc.Logger().With(logx.String("comp", "forward")))

	rep := report.New(report.Config{
		Enabled:  cfg.Report.Enabled,
		At:       cfg.Report.At,
		Timezone: cfg.Report.Timezone,
	}, fwd, disp, disp, logSvc.Logger().With(logx.String("comp", "report")))

	var cmds *command.Service
	if cfg.Telegram.CommandsEnabled {
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 0)
		if err != nil {
			return nil, err
		}
		cmds, err = command.New(command.Config{
			Token:        cfg.Telegram.Token,
			OwnerUserIDs: cfg.Telegram.OwnerUserIDs,
			PollTimeout:  pollTimeout,
		}, fwd, disp, store, logSvc.Logger().With(logx.String("comp", "command")))
		if err != nil {
			return nil, err
		}
		cmds.SetReportFunc(rep.SendNow)
	}

	return &App{
		cfgm:   cfgm,
		logs:   logSvc,
		log:    log,
		bus:    bus,
		store:  store,
		sender: sender,
		disp:   disp,
		fwd:    fwd,
		rep:    rep,
		cmds:   cmds,
	}, nil
}

// Bus exposes the host-facing event bus. The hosting controller publishes
// notifications.push events here.
func (a *App) Bus() eventbus.Bus { return a.bus }

// PublishNotification is a convenience for hosts that don't want to touch
// the bus directly.
func (a *App) PublishNotification(n kit.Notification) {
	a.bus.Publish(eventbus.Event{Type: kit.EventNotificationsPush, Data: n})
}

func (a *App) Start(ctx context.Context) error {
	a.fwd.Start(ctx)

	if err := a.rep.Start(ctx); err != nil {
		return err
	}
	if a.cmds != nil {
		if err := a.cmds.Start(ctx); err != nil {
			return err
		}
	}

	// Config hot reload: watch the file, re-apply routing and logging.
	wctx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	a.cfgCh = a.cfgm.Subscribe(4)
	a.watchWG.Add(2)
	go func() {
		defer a.watchWG.Done()
		_ = a.cfgm.Watch(wctx)
	}()
	go func() {
		defer a.watchWG.Done()
		for {
			select {
			case <-wctx.Done():
				return
			case cfg, ok := <-a.cfgCh:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	}()

	a.log.Info("started")
	return nil
}

func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(mapLogConfig(cfg))

	set, err := mapForwardSettings(cfg)
	if err != nil {
		// Validate() already passed; this would be a timezone database
		// problem. Keep the previous routing.
		a.log.Error("config reload not applied", logx.Err(err))
		return
	}
	a.fwd.Apply(set)
	// Token, chat id, storage driver and report schedule changes require a
	// restart; only routing and logging are hot-swapped.
	a.log.Info("routing reloaded", logx.Int("rules", set.Catalog.Len()))
}

func (a *App) Stop(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
		a.watchWG.Wait()
		a.cfgm.Unsubscribe(a.cfgCh)
		a.watchCancel = nil
	}

	if a.cmds != nil {
		_ = a.cmds.Stop(ctx)
	}
	a.rep.Stop(ctx)
	a.fwd.Stop(ctx)
	_ = a.disp.Close(ctx)

	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   logx.LevelForVerbosity(cfg.Logging.Verbosity),
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(sc *config.StorageConfig) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: sc.Driver, Path: sc.Path, BusyTimeout: busy}, nil
}

func mapForwardSettings(cfg *config.Config) (forward.Settings, error) {
	rs, err := cfg.Forward.CatalogRules()
	if err != nil {
		return forward.Settings{}, err
	}

	set := forward.Settings{
		Catalog: rules.NewCatalog(rs),
		Policy: forward.Policy{
			ForwardAll:     cfg.Forward.ForwardAll,
			CollectDefault: cfg.Forward.CollectDefault,
		},
		DefaultTemplate: cfg.Forward.DefaultTemplate,
	}

	if cfg.Forward.FlushTimes != "" {
		loc, err := cfg.Forward.Location()
		if err != nil {
			return forward.Settings{}, err
		}
		sched, err := forward.NewSchedule(cfg.Forward.FlushTimes, loc)
		if err != nil {
			return forward.Settings{}, err
		}
		set.Schedule = sched
	}
	return set, nil
}
