// Package datasource imports input tables from a SQL database. It only
// ever reads.
package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/aquilu/jacobo/internal/table"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	// ErrNotConfigured is returned when no source DSN is set.
	ErrNotConfigured = errors.New("no database source is configured")
	// ErrUnknownTable is returned for names not listed by ListTables.
	ErrUnknownTable = errors.New("unknown table")
)

// Config holds connection details.
type Config struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	// MaxRows caps LoadTable when the caller passes no limit.
	MaxRows int `mapstructure:"max_rows"`
}

// Enabled reports whether a source is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.DSN) != ""
}

// DataSource defines the read operations the importer needs.
type DataSource interface {
	ListTables(ctx context.Context) ([]string, error)
	LoadTable(ctx context.Context, name string, limit int) (*table.Table, error)
	Close() error
}

// SQLSource implements DataSource over database/sql.
type SQLSource struct {
	db      *sql.DB
	driver  string
	maxRows int
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config) (*SQLSource, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case DriverPostgres, DriverSQLite:
	case "postgresql":
		driver = DriverPostgres
	case "sqlite3":
		driver = DriverSQLite
	default:
		return nil, fmt.Errorf("unsupported source driver %q", cfg.Driver)
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// Each connection to ":memory:" is its own database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s source: %w", driver, err)
	}
	return &SQLSource{db: db, driver: driver, maxRows: cfg.MaxRows}, nil
}

// DB exposes the handle for tests and maintenance tasks.
func (s *SQLSource) DB() *sql.DB {
	return s.db
}

func (s *SQLSource) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ListTables returns the importable tables and views, sorted by name.
func (s *SQLSource) ListTables(ctx context.Context) ([]string, error) {
	var query string
	switch s.driver {
	case DriverPostgres:
		query = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		ORDER BY table_name;
	`
	default:
		query = `
		SELECT name
		FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name;
	`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		tables = append(tables, tableName)
	}
	return tables, rows.Err()
}

// LoadTable reads up to limit rows of name as a string table. The name must
// be one returned by ListTables.
func (s *SQLSource) LoadTable(ctx context.Context, name string, limit int) (*table.Table, error) {
	tables, err := s.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	known := false
	for _, t := range tables {
		if t == name {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}

	if limit <= 0 {
		limit = s.maxRows
	}
	query := "SELECT * FROM " + pq.QuoteIdentifier(name)
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var data [][]string
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}
		row := make([]string, len(columns))
		for i, v := range values {
			row[i] = stringValue(v)
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	t := table.New(columns, data)
	t.FileName = name
	return t, nil
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}
