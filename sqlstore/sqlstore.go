// Package sqlstore serves lookups from a table of a SQL database.
//
// The database is addressed by a connection-string template that may
// reference ${dbdirectory}, $env{NAME} and $prop{name} placeholders:
//
//	store, err := sqlstore.Open(ctx, sqlstore.Config{
//	    URL:         "file:${dbdirectory}/lookups.db?mode=ro",
//	    DBDirectory: "/data",
//	    Table:       "countries",
//	})
//
// Build modes:
//   - Default (CGO_ENABLED=0): pure Go modernc.org/sqlite, driver "sqlite"
//   - CGO mode (-tags cgo_sqlite): mattn/go-sqlite3, driver "sqlite3"
//
// Other database/sql drivers can be used by registering them and setting
// Config.Driver.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync/atomic"

	"github.com/hupe1980/kvlookup/annotation"
	"github.com/hupe1980/kvlookup/internal/dsn"
)

// ErrClosed is returned when using a closed store.
var ErrClosed = errors.New("sql store is closed")

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DriverName returns the SQL driver name compiled into this build.
func DriverName() string { return driverName }

// DriverType returns "purego" or "cgo".
func DriverType() string { return driverType }

// Config describes a SQL lookup table.
type Config struct {
	// Driver is the database/sql driver name. Defaults to DriverName().
	Driver string `json:"driver,omitempty"`
	// URL is the connection-string template.
	URL string `json:"url"`
	// DBDirectory replaces ${dbdirectory} in URL; it is made absolute.
	DBDirectory string `json:"db_directory,omitempty"`
	// Properties resolve $prop{name} placeholders.
	Properties map[string]string `json:"properties,omitempty"`
	// Table holds the key-value pairs.
	Table string `json:"table"`
	// KeyColumn defaults to "key".
	KeyColumn string `json:"key_column,omitempty"`
	// ValueColumn defaults to "value".
	ValueColumn string `json:"value_column,omitempty"`
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = driverName
	}
	if c.KeyColumn == "" {
		c.KeyColumn = "key"
	}
	if c.ValueColumn == "" {
		c.ValueColumn = "value"
	}
}

// Validate checks the identifiers and the template.
func (c Config) Validate() error {
	c.setDefaults()
	if c.URL == "" {
		return errors.New("url must not be empty")
	}
	for _, id := range []struct{ field, value string }{
		{"table", c.Table},
		{"key_column", c.KeyColumn},
		{"value_column", c.ValueColumn},
	} {
		if !identRe.MatchString(id.value) {
			return fmt.Errorf("%s %q is not a valid SQL identifier", id.field, id.value)
		}
	}
	return nil
}

// ExpandURL resolves the placeholders of the URL template.
func (c Config) ExpandURL() (string, error) {
	vars := map[string]string{"dbdirectory": ""}
	if c.DBDirectory != "" {
		abs, err := filepath.Abs(c.DBDirectory)
		if err != nil {
			return "", err
		}
		vars["dbdirectory"] = abs
	}
	return dsn.Expand(c.URL, vars, c.Properties)
}

// Store is a read-only lookup table. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	stmt   *sql.Stmt
	count  int
	closed atomic.Bool
}

// Open connects to the database and prepares the lookup statement.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	url, err := cfg.ExpandURL()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, url)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	s, err := prepare(ctx, db, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func prepare(ctx context.Context, db *sql.DB, cfg Config) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	var count int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %q`, cfg.Table)
	if err := db.QueryRowContext(ctx, countQuery).Scan(&count); err != nil {
		return nil, fmt.Errorf("count rows of %q: %w", cfg.Table, err)
	}

	query := fmt.Sprintf(`SELECT %q FROM %q WHERE %q = ?`, cfg.ValueColumn, cfg.Table, cfg.KeyColumn)
	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare lookup: %w", err)
	}
	return &Store{db: db, stmt: stmt, count: count}, nil
}

// Get returns the value stored under key. A SQL NULL is a present Null value.
func (s *Store) Get(ctx context.Context, key string) (annotation.Value, bool, error) {
	if s.closed.Load() {
		return annotation.Null(), false, ErrClosed
	}

	var raw any
	err := s.stmt.QueryRowContext(ctx, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return annotation.Null(), false, nil
	}
	if err != nil {
		return annotation.Null(), false, err
	}

	switch v := raw.(type) {
	case []byte:
		return annotation.String(string(v)), true, nil
	default:
		return annotation.ValueOf(v), true, nil
	}
}

// Len returns the row count observed when the store was opened.
func (s *Store) Len() int { return s.count }

// DB exposes the underlying pool, e.g. for loading fixtures.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the statement and the pool. A second call returns ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return ErrClosed
	}
	return errors.Join(s.stmt.Close(), s.db.Close())
}
