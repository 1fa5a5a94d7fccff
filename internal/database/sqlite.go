package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
)

// SQLiteDB implements DB using SQLite via mattn/go-sqlite3.
type SQLiteDB struct {
	conn
	path string
}

// NewSQLite opens (or creates) the SQLite database at cfg.Path.
// The special path ":memory:" opens a private in-memory database.
func NewSQLite(cfg config.DatabaseConfig) (*SQLiteDB, error) {
	path := cfg.Path
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, config.DefaultDBFile)
	}

	dsn := "file::memory:?_foreign_keys=on"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; also keeps :memory: on one connection
	db.SetMaxIdleConns(1)

	s := &SQLiteDB{conn: conn{db: db}, path: path}
	if err := s.Ping(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}
	return s, nil
}

func (s *SQLiteDB) Driver() string { return "sqlite" }

// Path returns the database file path.
func (s *SQLiteDB) Path() string { return s.path }

// Migrate applies all embedded migrations in sorted order.
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		filename    TEXT    NOT NULL UNIQUE,
		applied_at  TEXT    NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}
	return s.migrate(ctx, s.Driver(), func(ctx context.Context, name, sql string) error {
		if _, err := s.db.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("applying migration %s: %w", name, err)
		}
		return nil
	})
}

// Upsert inserts record or updates it on conflict with conflictCols.
func (s *SQLiteDB) Upsert(ctx context.Context, table string, record any, conflictCols []string) error {
	insert, updateCols, vals := upsertQuery(table, record, conflictCols)
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
	}
	query := fmt.Sprintf("%s ON CONFLICT(%s) DO UPDATE SET %s",
		insert, strings.Join(conflictCols, ", "), strings.Join(sets, ", "))
	_, err := s.db.ExecContext(ctx, query, vals...)
	return err
}
