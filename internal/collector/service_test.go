package collector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hostmon/internal/db"
	"hostmon/internal/models"
)

func TestTickStoresOnStandbyWhenPrimaryDown(t *testing.T) {
	dir := t.TempDir()
	primary := db.Endpoint{Driver: db.DriverSQLite, DSN: db.SQLiteDSN(filepath.Join(dir, "missing", "primary.db"))}
	standby := db.Endpoint{Driver: db.DriverSQLite, DSN: db.SQLiteDSN(filepath.Join(dir, "standby.db"))}
	sel := db.NewSelector(primary, standby, discardLogger())

	ping := &PingProbe{Binary: pingScript(t, "#!/bin/sh\nexit 1\n"), Target: "google.com", Timeout: 5 * time.Second}
	h := NewHostSampler("", ping, discardLogger())
	h.window = 10 * time.Millisecond
	h.route = "127.0.0.1:9"

	svc := NewService(h, sel, nil, discardLogger())
	if err := svc.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	res, err := svc.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.ActiveDB != db.RoleStandby || roleLabel(res.ActiveDB) != "standby" {
		t.Fatalf("active = %s, want Standby", res.ActiveDB)
	}
	if res.Sample.PingLatency != 0 {
		t.Fatalf("ping = %v, want 0 after failed ping", res.Sample.PingLatency)
	}

	lease, err := sel.Connect(context.Background(), standby)
	if err != nil {
		t.Fatalf("connect standby: %v", err)
	}
	defer lease.Close()
	repo := db.NewRepository(lease.DB())
	latest, err := repo.LatestRecord(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.HostIP != "127.0.0.1" || latest.PingLatency != 0 {
		t.Fatalf("unexpected row: %+v", latest)
	}
}

func TestTickWithoutEndpoint(t *testing.T) {
	dir := t.TempDir()
	down := db.Endpoint{Driver: db.DriverSQLite, DSN: db.SQLiteDSN(filepath.Join(dir, "missing", "x.db"))}
	sel := db.NewSelector(down, down, discardLogger())
	svc := NewService(staticSampler{CPUUsage: 12.5, HostIP: "10.0.0.5"}, sel, nil, discardLogger())

	res, err := svc.Tick(context.Background())
	if !errors.Is(err, db.ErrNoEndpoint) {
		t.Fatalf("err = %v, want ErrNoEndpoint", err)
	}
	if res.ActiveDB != db.RoleNone {
		t.Fatalf("active = %s, want None", res.ActiveDB)
	}
	if res.Sample.CPUUsage != 12.5 {
		t.Fatalf("sample lost: %+v", res.Sample)
	}
	if err := svc.EnsureSchema(context.Background()); !errors.Is(err, db.ErrNoEndpoint) {
		t.Fatalf("ensure schema err = %v, want ErrNoEndpoint", err)
	}
}

func TestTickReportsInsertFailure(t *testing.T) {
	// host_metrics exists with the wrong columns, so the schema step is a
	// no-op and the insert fails
	ep := db.Endpoint{Driver: db.DriverSQLite, DSN: db.SQLiteDSN(filepath.Join(t.TempDir(), "odd.db"))}
	conn, err := db.Open(ep.Driver, ep.DSN)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := conn.Exec(`CREATE TABLE host_metrics (id INTEGER PRIMARY KEY, timestamp TIMESTAMP)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = conn.Close()

	sel := db.NewSelector(ep, ep, discardLogger())
	svc := NewService(staticSampler{}, sel, nil, discardLogger())
	res, err := svc.Tick(context.Background())
	if err == nil {
		t.Fatal("expected insert error")
	}
	if res.ActiveDB != db.RolePrimary {
		t.Fatalf("active = %s, want Primary", res.ActiveDB)
	}
}

func TestStartupSchemaReachesStandby(t *testing.T) {
	dir := t.TempDir()
	primaryDir := filepath.Join(dir, "primary")
	mkdirAll(t, primaryDir)
	primary := db.Endpoint{Driver: db.DriverSQLite, DSN: db.SQLiteDSN(filepath.Join(primaryDir, "metrics.db"))}
	standby := db.Endpoint{Driver: db.DriverSQLite, DSN: db.SQLiteDSN(filepath.Join(dir, "standby.db"))}
	sel := db.NewSelector(primary, standby, discardLogger())
	svc := NewService(staticSampler{CPUUsage: 33, HostIP: "10.0.0.9"}, sel, nil, discardLogger())

	if err := svc.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if n := countRows(t, sel, standby); n != 0 {
		t.Fatalf("standby rows = %d, want 0", n)
	}

	res, err := svc.Tick(context.Background())
	if err != nil || res.ActiveDB != db.RolePrimary {
		t.Fatalf("first tick = %s, %v; want Primary", res.ActiveDB, err)
	}

	if err := os.RemoveAll(primaryDir); err != nil {
		t.Fatalf("remove primary: %v", err)
	}
	res, err = svc.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick after primary loss: %v", err)
	}
	if res.ActiveDB != db.RoleStandby {
		t.Fatalf("active = %s, want Standby", res.ActiveDB)
	}
	if n := countRows(t, sel, standby); n != 1 {
		t.Fatalf("standby rows = %d, want 1", n)
	}
}

func TestTickMigratesStandbyThatStartedLate(t *testing.T) {
	dir := t.TempDir()
	primaryDir := filepath.Join(dir, "primary")
	standbyDir := filepath.Join(dir, "standby")
	mkdirAll(t, primaryDir)
	primary := db.Endpoint{Driver: db.DriverSQLite, DSN: db.SQLiteDSN(filepath.Join(primaryDir, "metrics.db"))}
	standby := db.Endpoint{Driver: db.DriverSQLite, DSN: db.SQLiteDSN(filepath.Join(standbyDir, "metrics.db"))}
	sel := db.NewSelector(primary, standby, discardLogger())
	svc := NewService(staticSampler{CPUUsage: 5}, sel, nil, discardLogger())

	// standby directory is absent, so only the primary gets the schema
	if err := svc.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	mkdirAll(t, standbyDir)
	if err := os.RemoveAll(primaryDir); err != nil {
		t.Fatalf("remove primary: %v", err)
	}
	res, err := svc.Tick(context.Background())
	if err != nil || res.ActiveDB != db.RoleStandby {
		t.Fatalf("tick = %s, %v; want Standby", res.ActiveDB, err)
	}
	if n := countRows(t, sel, standby); n != 1 {
		t.Fatalf("standby rows = %d, want 1", n)
	}
}

func countRows(t *testing.T, sel *db.Selector, ep db.Endpoint) int {
	t.Helper()
	lease, err := sel.Connect(context.Background(), ep)
	if err != nil {
		t.Fatalf("connect %s: %v", ep.Role, err)
	}
	defer lease.Close()
	n, err := db.NewRepository(lease.DB()).Count(context.Background())
	if err != nil {
		t.Fatalf("count %s: %v", ep.Role, err)
	}
	return n
}

func mkdirAll(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
}

type staticSampler models.HostSample

func (s staticSampler) Sample(context.Context) models.HostSample { return models.HostSample(s) }
