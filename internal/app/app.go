package app

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/coreos/go-systemd/v22/daemon"

	"botlog/internal/chanlog"
	"botlog/internal/config"
	"botlog/internal/eventbus"
	"botlog/internal/runtime/supervisor"
	"botlog/internal/storage"
	logx "botlog/pkg/logx"
)

// App is the composition root: it owns the config manager, the diagnostic
// logger factory, the storage handle and the channel log router.
type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config
	sup  *supervisor.Supervisor

	logs *logx.Factory
	log  logx.Logger

	bus    eventbus.Bus
	store  storage.Store
	router *chanlog.Router
	rec    *chanlog.Recorder

	cfgCh    chan *config.Config
	recUnsub func()
	notify   func(state string) (bool, error)
}

type Option func(*App)

// WithNotifier replaces the systemd notifier (default: daemon.SdNotify).
func WithNotifier(fn func(state string) (bool, error)) Option {
	return func(a *App) { a.notify = fn }
}

// New loads the config and wires every component. Any error here is fatal.
func New(ctx context.Context, cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs := logx.NewFactory(mapLogConfig(cfg))
	log, err := logs.Build("botlog")
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:   cfgm,
		cfg:    cfg,
		logs:   logs,
		log:    log,
		bus:    eventbus.New(),
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
	for _, o := range opts {
		o(a)
	}

	cfgLog, err := a.logger("config")
	if err != nil {
		return nil, err
	}
	cfgm.SetLogger(cfgLog)

	if sc, enabled, err := MapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		storeLog, err := a.logger("storage")
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(ctx, sc, storeLog)
		if err != nil {
			return nil, err
		}
		a.store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}
	if cfg.ChannelLogging.DB && a.store == nil {
		log.Warn("channel_logging.db is set but storage is disabled; channel records will be dropped")
	}

	chLog, err := a.logger("chanlog")
	if err != nil {
		return nil, err
	}
	a.router = chanlog.NewRouter(mapChannelConfig(cfg), a.store, chanlog.WithLogger(chLog))
	a.rec = chanlog.NewRecorder(a.router, chLog)
	return a, nil
}

func (a *App) logger(comp string) (logx.Logger, error) {
	return a.logs.Build("botlog." + comp)
}

func (a *App) Bus() eventbus.Bus             { return a.bus }
func (a *App) Router() *chanlog.Router       { return a.router }
func (a *App) Recorder() *chanlog.Recorder   { return a.rec }
func (a *App) Store() storage.Store          { return a.store }
func (a *App) Config() *config.ConfigManager { return a.cfgm }
func (a *App) Logger() logx.Logger           { return a.log }

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches the config watcher, the config apply loop and the recorder.
func (a *App) Start(ctx context.Context) error {
	supLog, err := a.logger("supervisor")
	if err != nil {
		return err
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(supLog), supervisor.WithCancelOnError(true))

	a.cfgCh = a.cfgm.Subscribe(4)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("config.apply", a.applyLoop)
	// Subscribe before returning so events published right after Start are
	// not lost. Stop closes the subscription; Consume drains it first.
	events, unsub := a.bus.Subscribe(chanlog.SubscribeBuffer)
	a.recUnsub = unsub
	a.sup.Go("chanlog.recorder", func(ctx context.Context) error {
		return a.rec.Consume(ctx, events)
	})

	if sent, err := a.notify(daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("started", logx.String("config", a.cfgm.Path()))
	return nil
}

func (a *App) applyLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-a.cfgCh:
			if !ok {
				return nil
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case next, ok := <-a.cfgCh:
					if !ok {
						a.apply(cfg)
						return nil
					}
					cfg = next
				default:
					break drain
				}
			}
			a.apply(cfg)
		}
	}
}

// apply hot-reloads logging and channel routing. Storage is fixed for the
// process lifetime.
func (a *App) apply(cfg *config.Config) {
	changed, attrs := config.SummarizeConfigChange(a.cfg, cfg)
	if len(changed) == 0 {
		return
	}
	if err := a.logs.Apply(mapLogConfig(cfg)); err != nil {
		a.log.Error("logging reconfigure failed", logx.Err(err))
	}
	if err := a.router.Apply(mapChannelConfig(cfg)); err != nil {
		a.log.Error("channel logging reconfigure failed", logx.Err(err))
	}
	for _, c := range changed {
		if c == "storage" {
			a.log.Warn("storage changes take effect after restart")
		}
	}
	a.cfg = cfg
	a.log.Info("config applied", append(attrs, logx.Any("changed", changed))...)
}

// Stop shuts down in reverse order of construction. The diagnostic loggers
// are closed last.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := a.notify(daemon.SdNotifyStopping); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	var errs error
	if a.sup != nil {
		a.cfgm.Unsubscribe(a.cfgCh)
		// Closing the recorder's subscription first lets it write everything
		// still buffered before the router's sinks are closed below.
		a.recUnsub()
		errs = errors.CombineErrors(errs, a.sup.Stop(ctx))
	}
	if st, ok := a.bus.(eventbus.Stats); ok {
		if d := st.Dropped(); d > 0 {
			a.log.Warn("bus events dropped during run", logx.Uint64("dropped", d))
		}
	}
	errs = errors.CombineErrors(errs, a.router.Close())
	if a.store != nil {
		errs = errors.CombineErrors(errs, a.store.Close())
	}
	if f := a.rec.Failures(); f > 0 {
		a.log.Warn("channel log failures during run", logx.Uint64("failures", f))
	}
	a.log.Info("stopped", logx.Duration("grace_left", remaining(ctx)))
	errs = errors.CombineErrors(errs, a.logs.Close())
	return errs
}

func remaining(ctx context.Context) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(dl)
}
