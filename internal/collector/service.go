package collector

import (
	"context"
	"fmt"
	"log/slog"

	"hostmon/internal/db"
	"hostmon/internal/models"
	"hostmon/internal/telemetry"
)

type Sampler interface {
	Sample(ctx context.Context) models.HostSample
}

type Acquirer interface {
	Acquire(ctx context.Context) (*db.Lease, db.Role)
}

// SchemaMigrator reaches every endpoint, not only the one Acquire prefers.
type SchemaMigrator interface {
	MigrateAll(ctx context.Context) ([]db.Role, error)
}

// Result reports one persist attempt. ActiveDB is the endpoint that accepted
// the connection, RoleNone when neither did.
type Result struct {
	ActiveDB db.Role
	Sample   models.HostSample
	Pruned   int64
}

type Service struct {
	sampler Sampler
	dbs     Acquirer
	metrics *telemetry.Metrics
	log     *slog.Logger

	// migrated records roles whose schema this process has applied.
	migrated map[db.Role]bool
}

func NewService(sampler Sampler, dbs Acquirer, metrics *telemetry.Metrics, logger *slog.Logger) *Service {
	return &Service{sampler: sampler, dbs: dbs, metrics: metrics, log: logger, migrated: map[db.Role]bool{}}
}

// Tick samples the host, then stores the sample through a fresh lease. The
// sample is dropped when storing fails.
func (s *Service) Tick(ctx context.Context) (Result, error) {
	sample := s.sampler.Sample(ctx)
	s.metrics.Sample(sample.CPUUsage, sample.MemoryUsage, sample.PingLatency)
	res := Result{ActiveDB: db.RoleNone, Sample: sample}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	lease, role := s.dbs.Acquire(ctx)
	s.metrics.Acquire("write", string(role))
	res.ActiveDB = role
	if lease == nil {
		return res, db.ErrNoEndpoint
	}
	defer lease.Close()

	if err := s.ensureLease(ctx, lease); err != nil {
		return res, err
	}
	pruned, err := db.NewRepository(lease.DB()).InsertSample(ctx, sample)
	if err != nil {
		return res, fmt.Errorf("store metrics in %s: %w", roleLabel(role), err)
	}
	res.Pruned = pruned
	s.metrics.Pruned(pruned)
	return res, nil
}

// EnsureSchema creates host_metrics on every endpoint that answers, so a
// later switch to the standby finds the table in place.
func (s *Service) EnsureSchema(ctx context.Context) error {
	if m, ok := s.dbs.(SchemaMigrator); ok {
		roles, err := m.MigrateAll(ctx)
		for _, r := range roles {
			s.migrated[r] = true
		}
		return err
	}
	lease, _ := s.dbs.Acquire(ctx)
	if lease == nil {
		return db.ErrNoEndpoint
	}
	defer lease.Close()
	return s.ensureLease(ctx, lease)
}

// ensureLease applies the schema once per role, covering endpoints that were
// down when EnsureSchema ran.
func (s *Service) ensureLease(ctx context.Context, lease *db.Lease) error {
	role := lease.Endpoint.Role
	if s.migrated[role] {
		return nil
	}
	if err := db.Migrate(ctx, lease.DB(), lease.Endpoint.Driver); err != nil {
		return fmt.Errorf("ensure schema on %s: %w", roleLabel(role), err)
	}
	s.migrated[role] = true
	return nil
}
