// Package app wires the process together: config, logging, the gateway
// session, the dispatch engine and the HTTP surface, all run under one
// supervisor.
package app

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/yige233/mirai-webhook/internal/config"
	"github.com/yige233/mirai-webhook/internal/dispatch"
	"github.com/yige233/mirai-webhook/internal/eventbus"
	"github.com/yige233/mirai-webhook/internal/gateway"
	"github.com/yige233/mirai-webhook/internal/httpapi"
	"github.com/yige233/mirai-webhook/internal/observability/pprof"
	"github.com/yige233/mirai-webhook/internal/runtime/supervisor"
	logx "github.com/yige233/mirai-webhook/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	gw     *gateway.Client
	router *dispatch.Router
	server *httpapi.Server
	prof   *pprof.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logxConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	gw, err := gateway.New(cfg.Gateway, log.With(logx.String("comp", "gateway")), bus)
	if err != nil {
		return nil, err
	}
	router := dispatch.New(cfg.Topics, gw, log.With(logx.String("comp", "dispatch")), bus)

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	server := httpapi.NewServer(addr, router, log.With(logx.String("comp", "http")))

	var profCfg pprof.Config
	if cfg.Debug != nil {
		profCfg = pprof.Config{Enabled: cfg.Debug.Enabled, Addr: cfg.Debug.Addr, Token: cfg.Debug.Token}
	}
	prof := pprof.New(profCfg, log.With(logx.String("comp", "pprof")))

	return &App{
		cfgm:   cfgm,
		log:    log,
		logs:   logSvc,
		bus:    bus,
		gw:     gw,
		router: router,
		server: server,
		prof:   prof,
	}, nil
}

// Done is closed when the supervisor context is canceled, either by a fatal
// component error or by Stop.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.sup.Go("gateway.run", a.gw.Run)
	a.sup.Go("http.serve", a.server.Run)
	if a.prof.Enabled() {
		a.sup.Go("pprof.serve", a.prof.Run)
	}

	// The config watcher self-heals internally; the restart loop only kicks
	// in if the watcher itself returns an error.
	a.sup.GoRestart("config.watch", time.Second, a.cfgm.Watch)

	// Hot reload applies logging changes only. Topics and the gateway triple
	// are fixed for the process lifetime.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return nil
			case cfg, ok := <-sub:
				if !ok {
					return nil
				}
				a.logs.Apply(logxConfig(cfg))
				a.log.Info("logging config reloaded")
				a.log.Warn("topic and gateway changes require a restart to take effect")
			}
		}
	})

	events, unsub := a.bus.Subscribe(64)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	a.log.Info("started")
	return nil
}

// Stop cancels the run context and waits for every component to unwind, then
// flushes the logging service.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	err := a.sup.Stop(ctx)
	_ = a.logs.Close()
	return err
}

func logxConfig(cfg *config.Config) logx.Config {
	v := cfg.Logx()
	return logx.Config{
		Level:   v.Level,
		Console: v.Console,
		File: logx.FileConfig{
			Enabled:    v.FileEnabled,
			Path:       v.FilePath,
			RatePerSec: v.FileRatePerSec,
		},
	}
}
