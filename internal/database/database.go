// Package database opens the SQL backends the claim and policy stores run on
// and smooths over the differences between them.
//
// Queries are written with ? placeholders and passed through Rebind. Times
// are written with Dialect.Time and read back through the Time scanner, so
// PostgreSQL TIMESTAMPTZ and SQLite TEXT columns behave the same.
package database

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/liamcoop/claims/migrations"
)

// Dialect names a supported SQL backend
type Dialect string

const (
	Postgres Dialect = migrations.Postgres
	SQLite   Dialect = migrations.SQLite
)

// ParseDialect accepts the backend names used in configuration
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", s)
	}
}

func (d Dialect) driverName() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

var sqlitePragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

// Open connects to dsn and verifies the connection. SQLite databases are
// limited to a single connection so pragmas and :memory: state are shared.
func Open(d Dialect, dsn string) (*sql.DB, error) {
	if d == SQLite && dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d == SQLite {
		db.SetMaxOpenConns(1)
		for _, p := range sqlitePragmas {
			if _, err := db.Exec(p); err != nil {
				db.Close()
				return nil, fmt.Errorf("%s: %w", p, err)
			}
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// OpenMigrated opens the database and applies the embedded schema
func OpenMigrated(d Dialect, dsn string) (*sql.DB, error) {
	db, err := Open(d, dsn)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db, string(d)); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory returns a migrated in-memory SQLite database closed at test cleanup
func OpenMemory(t testing.TB) *sql.DB {
	t.Helper()
	db, err := OpenMigrated(SQLite, ":memory:")
	if err != nil {
		t.Fatalf("OpenMemory() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Rebind rewrites ? placeholders into the dialect's form
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// textLayout has a fixed-width fraction so stored text sorts chronologically
const textLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Time converts t into the value the dialect stores in timestamp columns
func (d Dialect) Time(t time.Time) any {
	if d == Postgres {
		return t.UTC()
	}
	return t.UTC().Format(textLayout)
}

// NullTime converts an optional time like Time, passing nil through
func (d Dialect) NullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.Time(*t)
}

// Time scans a timestamp stored either natively or as RFC 3339 text
type Time struct {
	Time  time.Time
	Valid bool
}

var textLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

// Scan implements sql.Scanner
func (t *Time) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into database.Time", src)
	}
}

func (t *Time) parse(s string) error {
	for _, layout := range textLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// Value implements driver.Valuer
func (t Time) Value() (driver.Value, error) {
	if !t.Valid {
		return nil, nil
	}
	return t.Time.UTC().Format(textLayout), nil
}

// Ptr returns the time or nil when it was NULL
func (t Time) Ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
