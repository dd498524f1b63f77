package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/okzk/sdnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"hostmon/internal/collector"
	"hostmon/internal/config"
	"hostmon/internal/db"
	"hostmon/internal/notifier"
	"hostmon/internal/query"
	"hostmon/internal/telemetry"
	"hostmon/internal/web"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	cfg config.Config
	log *slog.Logger

	reg     *prometheus.Registry
	metrics *telemetry.Metrics
	dbs     *db.Selector
	notify  *notifier.Telegram

	loop  *collector.Loop
	query *query.Service
	web   *web.Server

	httpSrv *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	primary, standby, err := Endpoints(cfg)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := telemetry.New(reg)
	dbs := db.NewSelector(primary, standby, logger.With("module", "db"))
	n := notifier.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)

	sampler := collector.NewHostSampler(cfg.ProcRoot, collector.NewPingProbe(cfg.PingTarget), logger.With("module", "sampler"))
	svc := collector.NewService(sampler, dbs, m, logger.With("module", "collector"))
	loop := collector.NewLoop(svc, n, m, cfg.ServerID, logger.With("module", "collector"))
	qs := query.NewService(dbs, cfg.ServerID, m, logger.With("module", "query"))
	w := web.NewServer(qs, reg, logger.With("module", "web"))

	a := &App{
		cfg:     cfg,
		log:     logger,
		reg:     reg,
		metrics: m,
		dbs:     dbs,
		notify:  n,
		loop:    loop,
		query:   qs,
		web:     w,
	}
	loop.OnReady = a.notifyReady
	a.httpSrv = &http.Server{Addr: cfg.HTTPAddr, Handler: w.Routes(), ReadHeaderTimeout: 10 * time.Second}
	return a, nil
}

// Endpoints maps the configured hosts onto driver DSNs. For sqlite3 the hosts
// are database file paths.
func Endpoints(cfg config.Config) (primary, standby db.Endpoint, err error) {
	switch cfg.DBDriver {
	case db.DriverPostgres:
		primary = db.Endpoint{Driver: db.DriverPostgres, DSN: db.PostgresDSN(cfg.PrimaryHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)}
		standby = db.Endpoint{Driver: db.DriverPostgres, DSN: db.PostgresDSN(cfg.StandbyHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)}
	case db.DriverSQLite:
		primary = db.Endpoint{Driver: db.DriverSQLite, DSN: db.SQLiteDSN(cfg.PrimaryHost)}
		standby = db.Endpoint{Driver: db.DriverSQLite, DSN: db.SQLiteDSN(cfg.StandbyHost)}
	default:
		return primary, standby, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	primary.Role, standby.Role = db.RolePrimary, db.RoleStandby
	return primary, standby, nil
}

func (a *App) Query() *query.Service { return a.query }

// RunCollector blocks until ctx ends.
func (a *App) RunCollector(ctx context.Context) error {
	defer a.notifyStopping()
	if a.notify.Enabled() {
		a.log.Info("failover notifications enabled", "channel", "telegram")
	}
	return a.loop.Run(ctx)
}

// RunServer serves the read API until ctx ends, then shuts down gracefully.
func (a *App) RunServer(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.HTTPAddr, "server_id", a.cfg.ServerID)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Run hosts the collector and the read API in one process.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.RunCollector(gctx) })
	g.Go(func() error { return a.RunServer(gctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Migrate applies the schema to every endpoint that answers and reports the
// roles it reached.
func (a *App) Migrate(ctx context.Context) ([]db.Role, error) {
	return a.dbs.MigrateAll(ctx)
}

func (a *App) notifyReady() {
	if err := sdnotify.Ready(); err != nil {
		a.log.Debug("systemd ready notification skipped", "err", err)
		return
	}
	a.log.Debug("sent READY notification to systemd")
}

func (a *App) notifyStopping() {
	if err := sdnotify.Stopping(); err != nil {
		a.log.Debug("systemd stopping notification skipped", "err", err)
	}
}
