package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hostmon/internal/db"
	"hostmon/internal/notifier"
	"hostmon/internal/telemetry"
)

const (
	StartupDelay = 10 * time.Second
	Interval     = 60 * time.Second
	ErrorBackoff = 5 * time.Second
)

type FailoverNotifier interface {
	NotifyFailover(ctx context.Context, f notifier.Failover) error
}

// Loop drives the collector: a startup grace period, then sample, persist,
// sleep until the context ends.
type Loop struct {
	svc     *Service
	notify  FailoverNotifier
	metrics *telemetry.Metrics
	log     *slog.Logger
	host    string

	// OnReady runs once after the startup delay.
	OnReady func()

	startupDelay time.Duration
	interval     time.Duration
	backoff      time.Duration
	now          func() time.Time

	// lastRole only feeds failover reporting; Acquire never sees it.
	lastRole db.Role
}

func NewLoop(svc *Service, notify FailoverNotifier, metrics *telemetry.Metrics, host string, logger *slog.Logger) *Loop {
	return &Loop{
		svc:          svc,
		notify:       notify,
		metrics:      metrics,
		log:          logger,
		host:         host,
		startupDelay: StartupDelay,
		interval:     Interval,
		backoff:      ErrorBackoff,
		now:          time.Now,
	}
}

func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("starting monitoring system", "startup_delay", l.startupDelay.String())
	if !sleepCtx(ctx, l.startupDelay) {
		l.log.Info("monitoring stopped")
		return nil
	}
	if err := l.svc.EnsureSchema(ctx); err != nil {
		l.log.Warn("ensure schema", "err", err)
	}
	if l.OnReady != nil {
		l.OnReady()
	}

	for {
		wait := l.interval
		if err := l.runCycle(ctx); err != nil {
			l.metrics.Cycle("error")
			l.log.Error("error in monitoring loop", "err", err)
			wait = l.backoff
		}
		if !sleepCtx(ctx, wait) {
			l.log.Info("monitoring stopped")
			return nil
		}
	}
}

func (l *Loop) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()

	res, tickErr := l.svc.Tick(ctx)
	if ctx.Err() != nil {
		return nil
	}
	l.observe(ctx, res.ActiveDB)
	if tickErr != nil {
		l.metrics.Cycle("dropped")
		l.log.Error("metrics not stored", "active_db", roleLabel(res.ActiveDB), "err", tickErr)
		return nil
	}
	l.metrics.Cycle("stored")
	l.log.Info("metrics stored",
		"active_db", roleLabel(res.ActiveDB),
		"cpu", res.Sample.CPUUsage,
		"mem", res.Sample.MemoryUsage,
		"ip", res.Sample.HostIP,
		"ping_ms", res.Sample.PingLatency,
		"pruned", res.Pruned,
	)
	return nil
}

func (l *Loop) observe(ctx context.Context, role db.Role) {
	prev := l.lastRole
	l.lastRole = role
	if !isFailover(prev, role) {
		return
	}
	l.metrics.Failover()
	f := notifier.Failover{Host: l.host, From: roleLabel(prev), To: roleLabel(role), At: l.now()}
	l.log.Warn("database failover", "from", f.From, "to", f.To)
	if l.notify == nil {
		return
	}
	if err := l.notify.NotifyFailover(ctx, f); err != nil {
		l.log.Warn("notify failover", "err", err)
	}
}

func isFailover(prev, cur db.Role) bool {
	return prev != "" && prev != cur
}

func roleLabel(r db.Role) string {
	if r == "" {
		return strings.ToLower(string(db.RoleNone))
	}
	return strings.ToLower(string(r))
}

// sleepCtx reports false when ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
