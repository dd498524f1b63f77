package retention

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestNewPolicyDefaults(t *testing.T) {
	if got := NewPolicy(0).Keep(); got != Keep {
		t.Fatalf("keep = %d, want %d", got, Keep)
	}
	if got := NewPolicy(5).Keep(); got != 5 {
		t.Fatalf("keep = %d, want 5", got)
	}
}

func TestApplyKeepsNewest(t *testing.T) {
	sqldb, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "r.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqldb.Close()
	ctx := context.Background()
	if _, err := sqldb.ExecContext(ctx, `CREATE TABLE host_metrics (id INTEGER PRIMARY KEY AUTOINCREMENT, timestamp TIMESTAMP NOT NULL)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	// rows 1..5 share a timestamp, so ids decide which survive
	for i := 0; i < 5; i++ {
		if _, err := sqldb.ExecContext(ctx, `INSERT INTO host_metrics (timestamp) VALUES ('2024-05-01 12:00:00')`); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, err := sqldb.ExecContext(ctx, `INSERT INTO host_metrics (timestamp) VALUES ('2024-05-01 11:00:00')`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	n, err := NewPolicy(3).Apply(ctx, sqldb)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if n != 3 {
		t.Fatalf("pruned = %d, want 3", n)
	}
	rows, err := sqldb.QueryContext(ctx, `SELECT id FROM host_metrics ORDER BY id`)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		ids = append(ids, id)
	}
	if len(ids) != 3 || ids[0] != 3 || ids[1] != 4 || ids[2] != 5 {
		t.Fatalf("kept ids = %v, want [3 4 5]", ids)
	}

	n, err = NewPolicy(3).Apply(ctx, sqldb)
	if err != nil || n != 0 {
		t.Fatalf("second apply = %d, %v; want 0, nil", n, err)
	}
}
