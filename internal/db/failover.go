package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ConnectTimeout bounds each endpoint attempt.
const ConnectTimeout = 3 * time.Second

var ErrNoEndpoint = errors.New("no database endpoint available")

// Role names the endpoint that accepted a connection.
type Role string

const (
	RolePrimary Role = "Primary"
	RoleStandby Role = "Standby"
	RoleNone    Role = "None"
)

type Endpoint struct {
	Role   Role
	Driver string
	DSN    string
}

// Lease is one open connection to one endpoint. Callers own it and must
// Close it.
type Lease struct {
	db       *sql.DB
	Endpoint Endpoint
}

func (l *Lease) DB() *sql.DB { return l.db }

func (l *Lease) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Selector picks primary, then standby, on every call. It keeps no memory of
// which endpoint answered last time.
type Selector struct {
	primary Endpoint
	standby Endpoint
	timeout time.Duration
	log     *slog.Logger
}

func NewSelector(primary, standby Endpoint, logger *slog.Logger) *Selector {
	primary.Role = RolePrimary
	standby.Role = RoleStandby
	return &Selector{primary: primary, standby: standby, timeout: ConnectTimeout, log: logger}
}

func (s *Selector) Endpoints() []Endpoint { return []Endpoint{s.primary, s.standby} }

// Acquire returns a lease on the first endpoint that answers a ping within
// the connect timeout, or (nil, RoleNone) when neither does.
func (s *Selector) Acquire(ctx context.Context) (*Lease, Role) {
	for _, ep := range s.Endpoints() {
		lease, err := s.Connect(ctx, ep)
		if err == nil {
			return lease, ep.Role
		}
		s.log.Warn("database endpoint unavailable", "role", ep.Role, "err", err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, RoleNone
}

func (s *Selector) Connect(ctx context.Context, ep Endpoint) (*Lease, error) {
	db, err := Open(ep.Driver, ep.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ep.Role, err)
	}
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", ep.Role, err)
	}
	return &Lease{db: db, Endpoint: ep}, nil
}

// MigrateAll applies the schema to every endpoint that answers and returns
// the roles it reached, ErrNoEndpoint when none did.
func (s *Selector) MigrateAll(ctx context.Context) ([]Role, error) {
	var done []Role
	for _, ep := range s.Endpoints() {
		lease, err := s.Connect(ctx, ep)
		if err != nil {
			s.log.Warn("skip migration", "role", ep.Role, "err", err)
			continue
		}
		err = Migrate(ctx, lease.DB(), ep.Driver)
		_ = lease.Close()
		if err != nil {
			return done, fmt.Errorf("%s: %w", ep.Role, err)
		}
		s.log.Info("schema applied", "role", ep.Role)
		done = append(done, ep.Role)
	}
	if len(done) == 0 {
		return nil, ErrNoEndpoint
	}
	return done, nil
}
