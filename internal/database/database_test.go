package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
)

type queryRow struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	Query     string `db:"query"`
	EventType string `db:"event_type"`
	Schedule  string `db:"schedule"`
	Params    string `db:"params"`
	Enabled   bool   `db:"enabled"`
	LastRunAt string `db:"last_run_at"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func openTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLite(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var n struct {
		Count int `db:"n"`
	}
	if err := db.Get(context.Background(), &n, `SELECT COUNT(*) AS n FROM schema_migrations`); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n.Count != 1 {
		t.Fatalf("expected 1 applied migration, got %d", n.Count)
	}
}

func TestUpsertInsertsThenUpdates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	row := queryRow{Name: "daily", Query: "SELECT 1", EventType: "daily_stats", Schedule: "daily", Params: "[]", Enabled: true, CreatedAt: "t0", UpdatedAt: "t0"}
	if err := db.Upsert(ctx, "scheduled_queries", row, []string{"name"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	row.Schedule = "hourly"
	row.UpdatedAt = "t1"
	if err := db.Upsert(ctx, "scheduled_queries", row, []string{"name"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var rows []queryRow
	if err := db.Select(ctx, &rows, `SELECT * FROM scheduled_queries`); err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 1 || rows[0].Schedule != "hourly" || rows[0].UpdatedAt != "t1" || !rows[0].Enabled {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestGetNoRows(t *testing.T) {
	db := openTestDB(t)
	var row queryRow
	err := db.Get(context.Background(), &row, `SELECT * FROM scheduled_queries WHERE name = ?`, "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestInsertUpdateAndQueryRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	id, err := db.Insert(ctx, "scheduled_queries", queryRow{Name: "q", Query: "SELECT 1", EventType: "e", Schedule: "daily", Params: "[]", CreatedAt: "t0", UpdatedAt: "t0"})
	if err != nil || id == 0 {
		t.Fatalf("insert: id=%d err=%v", id, err)
	}
	if err := db.Exec(ctx, `UPDATE scheduled_queries SET last_run_at = ? WHERE id = ?`, "2026-03-01T00:00:00Z", id); err != nil {
		t.Fatalf("exec: %v", err)
	}

	rows, err := db.QueryRows(ctx, `SELECT id, name, last_run_at FROM scheduled_queries`)
	if err != nil {
		t.Fatalf("QueryRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0]["name"] != "q" || rows[0]["last_run_at"] != "2026-03-01T00:00:00Z" {
		t.Fatalf("unexpected row: %v", rows[0])
	}
	if _, ok := rows[0]["id"].(int64); !ok {
		t.Fatalf("expected int64 id, got %T", rows[0]["id"])
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	if _, err := New(config.DatabaseConfig{Driver: "oracle"}); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported driver error, got %v", err)
	}
}

func TestMySQLAdaptAndDSN(t *testing.T) {
	got := mysqlAdapt("id INTEGER PRIMARY KEY AUTOINCREMENT,")
	if got != "id INT NOT NULL AUTO_INCREMENT PRIMARY KEY," {
		t.Fatalf("mysqlAdapt: %q", got)
	}
	if withParseTime("u:p@/db") != "u:p@/db?parseTime=true" || withParseTime("u:p@/db?x=1") != "u:p@/db?x=1&parseTime=true" {
		t.Fatal("withParseTime did not append parseTime")
	}
}
