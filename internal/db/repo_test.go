package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"hostmon/internal/models"
	"hostmon/internal/retention"
)

func TestInsertSampleKeepsNewestRows(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 1; i <= 105; i++ {
		pruned, err := repo.InsertSample(ctx, sampleN(i))
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		want := int64(0)
		if i > retention.Keep {
			want = 1
		}
		if pruned != want {
			t.Fatalf("insert %d pruned %d rows, want %d", i, pruned, want)
		}
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 100 {
		t.Fatalf("rows = %d, want 100", n)
	}

	var minCPU, maxCPU float64
	if err := repo.DB().QueryRow(`SELECT MIN(cpu_usage), MAX(cpu_usage) FROM host_metrics`).Scan(&minCPU, &maxCPU); err != nil {
		t.Fatalf("range: %v", err)
	}
	if minCPU != 6 || maxCPU != 105 {
		t.Fatalf("retained range = [%v, %v], want [6, 105]", minCPU, maxCPU)
	}

	latest, err := repo.LatestRecord(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.HostSample != sampleN(105) {
		t.Fatalf("latest = %+v, want sample 105", latest.HostSample)
	}
	if latest.Timestamp.IsZero() {
		t.Fatal("timestamp not assigned by the store")
	}
}

func TestLatestRecordIsStable(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if _, err := repo.InsertSample(ctx, sampleN(i)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	first, err := repo.LatestRecord(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	second, err := repo.LatestRecord(ctx)
	if err != nil {
		t.Fatalf("latest again: %v", err)
	}
	if first != second {
		t.Fatalf("latest changed without insert: %+v vs %+v", first, second)
	}
}

func TestLatestRecordEmpty(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.LatestRecord(context.Background()); !errors.Is(err, ErrNoRecords) {
		t.Fatalf("err = %v, want ErrNoRecords", err)
	}
}

func TestInsertSampleRollsBackWhenTrimFails(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for i := 1; i <= retention.Keep; i++ {
		if _, err := repo.InsertSample(ctx, sampleN(i)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if _, err := repo.DB().Exec(`CREATE TRIGGER block_trim BEFORE DELETE ON host_metrics BEGIN SELECT RAISE(ABORT, 'trim blocked'); END;`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if _, err := repo.InsertSample(ctx, sampleN(101)); err == nil {
		t.Fatal("expected insert to fail when trim aborts")
	}
	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != retention.Keep {
		t.Fatalf("rows = %d, want %d (insert must roll back with the trim)", n, retention.Keep)
	}
	latest, err := repo.LatestRecord(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.CPUUsage != float64(retention.Keep) {
		t.Fatalf("latest cpu = %v, want %d", latest.CPUUsage, retention.Keep)
	}
}

func sampleN(i int) models.HostSample {
	return models.HostSample{
		CPUUsage:    float64(i),
		MemoryUsage: 50.5,
		MemoryTotal: 8 << 30,
		MemoryUsed:  4 << 30,
		HostIP:      "10.0.0.7",
		PingLatency: 12.34,
	}
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	sqldb, err := Open(DriverSQLite, SQLiteDSN(filepath.Join(t.TempDir(), "test.db")))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = sqldb.Close() })
	if err := Migrate(context.Background(), sqldb, DriverSQLite); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return NewRepository(sqldb)
}
