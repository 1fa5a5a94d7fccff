package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
)

// MySQLDB implements DB using MySQL via go-sql-driver/mysql.
type MySQLDB struct {
	conn
}

// NewMySQL opens a MySQL connection using cfg.DSN.
func NewMySQL(cfg config.DatabaseConfig) (*MySQLDB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mysql DSN is required when driver is mysql")
	}

	db, err := sql.Open("mysql", withParseTime(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("opening mysql connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	m := &MySQLDB{conn: conn{db: db}}
	if err := m.Ping(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging mysql: %w", err)
	}
	return m, nil
}

func (m *MySQLDB) Driver() string { return "mysql" }

// Migrate applies pending migrations, translating SQLite syntax and running
// one statement at a time.
func (m *MySQLDB) Migrate(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		id         INT          NOT NULL AUTO_INCREMENT PRIMARY KEY,
		filename   VARCHAR(255) NOT NULL UNIQUE,
		applied_at VARCHAR(64)  NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return m.migrate(ctx, m.Driver(), func(ctx context.Context, name, src string) error {
		for _, stmt := range strings.Split(mysqlAdapt(src), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := m.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("applying migration %s statement: %w\nSQL: %s", name, err, stmt)
			}
		}
		return nil
	})
}

// Upsert uses INSERT ... ON DUPLICATE KEY UPDATE. conflictCols must be
// covered by a unique key.
func (m *MySQLDB) Upsert(ctx context.Context, table string, record any, conflictCols []string) error {
	insert, updateCols, vals := upsertQuery(table, record, conflictCols)
	pairs := make([]string, len(updateCols))
	for i, c := range updateCols {
		pairs[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
	}
	_, err := m.db.ExecContext(ctx, insert+" ON DUPLICATE KEY UPDATE "+strings.Join(pairs, ", "), vals...)
	return err
}

func withParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

// mysqlAdapt converts SQLite-specific DDL to MySQL equivalents.
func mysqlAdapt(sql string) string {
	sql = strings.ReplaceAll(sql, "INTEGER PRIMARY KEY AUTOINCREMENT", "INT NOT NULL AUTO_INCREMENT PRIMARY KEY")
	sql = strings.ReplaceAll(sql, "AUTOINCREMENT", "AUTO_INCREMENT")
	sql = strings.ReplaceAll(sql, " REAL ", " DOUBLE ")
	return sql
}
