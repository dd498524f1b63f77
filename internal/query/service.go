// Package query serves the latest stored sample together with the endpoint
// that answered the read.
package query

import (
	"context"
	"errors"
	"log/slog"

	"hostmon/internal/db"
	"hostmon/internal/models"
	"hostmon/internal/telemetry"
)

const (
	TimestampLayout = "2006-01-02 15:04:05"
	NotAvailable    = "N/A"

	// StatusError is reported when a connection succeeded but the fetch did not.
	StatusError = "Error"
)

type Acquirer interface {
	Acquire(ctx context.Context) (*db.Lease, db.Role)
}

// Snapshot is the read API payload.
type Snapshot struct {
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`
	MemoryTotal int64   `json:"memory_total"`
	MemoryUsed  int64   `json:"memory_used"`
	HostIP      string  `json:"host_ip"`
	PingLatency float64 `json:"ping_latency"`
	Timestamp   string  `json:"timestamp"`
	DBStatus    string  `json:"db_status"`
	ServerID    string  `json:"server_id"`
}

// HasData reports whether the snapshot carries a stored row.
func (s Snapshot) HasData() bool { return s.Timestamp != NotAvailable }

type Service struct {
	dbs      Acquirer
	serverID string
	metrics  *telemetry.Metrics
	log      *slog.Logger
}

func NewService(dbs Acquirer, serverID string, metrics *telemetry.Metrics, logger *slog.Logger) *Service {
	return &Service{dbs: dbs, serverID: serverID, metrics: metrics, log: logger}
}

func (s *Service) ServerID() string { return s.serverID }

// Latest never fails: an unreachable database, an empty table and a failed
// fetch all map to placeholder snapshots.
func (s *Service) Latest(ctx context.Context) Snapshot {
	lease, role := s.dbs.Acquire(ctx)
	s.metrics.Acquire("read", string(role))
	if lease == nil {
		return s.placeholder(string(db.RoleNone))
	}
	defer lease.Close()

	rec, err := db.NewRepository(lease.DB()).LatestRecord(ctx)
	switch {
	case errors.Is(err, db.ErrNoRecords):
		return s.placeholder(string(role))
	case err != nil:
		s.log.Error("error fetching metrics", "role", role, "err", err)
		return s.placeholder(StatusError)
	}
	return s.fromRecord(rec, string(role))
}

// Ready reports whether any endpoint accepts a connection right now.
func (s *Service) Ready(ctx context.Context) (db.Role, bool) {
	lease, role := s.dbs.Acquire(ctx)
	s.metrics.Acquire("ready", string(role))
	if lease == nil {
		return db.RoleNone, false
	}
	_ = lease.Close()
	return role, true
}

func (s *Service) placeholder(status string) Snapshot {
	return Snapshot{
		HostIP:    NotAvailable,
		Timestamp: NotAvailable,
		DBStatus:  status,
		ServerID:  s.serverID,
	}
}

func (s *Service) fromRecord(rec models.MetricRecord, status string) Snapshot {
	return Snapshot{
		CPUUsage:    rec.CPUUsage,
		MemoryUsage: rec.MemoryUsage,
		MemoryTotal: rec.MemoryTotal,
		MemoryUsed:  rec.MemoryUsed,
		HostIP:      rec.HostIP,
		PingLatency: rec.PingLatency,
		Timestamp:   rec.Timestamp.Format(TimestampLayout),
		DBStatus:    status,
		ServerID:    s.serverID,
	}
}
