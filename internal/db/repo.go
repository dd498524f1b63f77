package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hostmon/internal/models"
	"hostmon/internal/retention"
)

var ErrNoRecords = errors.New("no metrics recorded yet")

type Repository struct {
	db        *sql.DB
	retention retention.Policy
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, retention: retention.NewPolicy(retention.Keep)}
}

func (r *Repository) DB() *sql.DB { return r.db }

// InsertSample appends one row and trims the table in the same transaction.
// It returns how many rows the trim removed.
func (r *Repository) InsertSample(ctx context.Context, s models.HostSample) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO host_metrics
		(cpu_usage,memory_usage,memory_total,memory_used,host_ip,ping_latency)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		s.CPUUsage, s.MemoryUsage, s.MemoryTotal, s.MemoryUsed, s.HostIP, s.PingLatency); err != nil {
		return 0, fmt.Errorf("insert host metric: %w", err)
	}
	pruned, err := r.retention.Apply(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("retention: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return pruned, nil
}

func (r *Repository) LatestRecord(ctx context.Context) (models.MetricRecord, error) {
	var m models.MetricRecord
	err := r.db.QueryRowContext(ctx, `SELECT id,cpu_usage,memory_usage,memory_total,memory_used,host_ip,ping_latency,timestamp
		FROM host_metrics ORDER BY timestamp DESC, id DESC LIMIT 1`).
		Scan(&m.ID, &m.CPUUsage, &m.MemoryUsage, &m.MemoryTotal, &m.MemoryUsed, &m.HostIP, &m.PingLatency, &m.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MetricRecord{}, ErrNoRecords
	}
	return m, err
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM host_metrics`).Scan(&n)
	return n, err
}
