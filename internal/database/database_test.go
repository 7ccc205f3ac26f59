package database

import (
	"testing"
	"time"
)

// TestRebind verifies placeholder rewriting per dialect
func TestRebind(t *testing.T) {
	query := "UPDATE claims SET status = ?, version = ? WHERE id = ? AND version = ?"

	if got := SQLite.Rebind(query); got != query {
		t.Errorf("SQLite.Rebind() = %q, want unchanged", got)
	}

	want := "UPDATE claims SET status = $1, version = $2 WHERE id = $3 AND version = $4"
	if got := Postgres.Rebind(query); got != want {
		t.Errorf("Postgres.Rebind() = %q, want %q", got, want)
	}
}

// TestParseDialect verifies accepted driver names
func TestParseDialect(t *testing.T) {
	tests := map[string]Dialect{
		"postgres":   Postgres,
		"PostgreSQL": Postgres,
		"sqlite":     SQLite,
		"sqlite3":    SQLite,
	}
	for in, want := range tests {
		got, err := ParseDialect(in)
		if err != nil {
			t.Errorf("ParseDialect(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseDialect(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseDialect("mysql"); err == nil {
		t.Error("ParseDialect(mysql) should fail")
	}
}

// TestTimeScan verifies native and textual timestamps
func TestTimeScan(t *testing.T) {
	want := time.Date(2024, 3, 1, 8, 30, 0, 123000000, time.UTC)

	inputs := []any{
		want,
		want.In(time.FixedZone("CST", 8*3600)),
		want.Format(time.RFC3339Nano),
		[]byte(want.Format(time.RFC3339Nano)),
	}
	for _, in := range inputs {
		var got Time
		if err := got.Scan(in); err != nil {
			t.Errorf("Scan(%v) failed: %v", in, err)
			continue
		}
		if !got.Valid || !got.Time.Equal(want) {
			t.Errorf("Scan(%v) = %v, want %v", in, got.Time, want)
		}
	}

	var null Time
	if err := null.Scan(nil); err != nil || null.Valid || null.Ptr() != nil {
		t.Errorf("Scan(nil) = %+v, %v; want invalid", null, err)
	}

	var bad Time
	if err := bad.Scan("yesterday"); err == nil {
		t.Error("Scan(yesterday) should fail")
	}
}

// TestDialectTime verifies the stored representation round-trips through Time
func TestDialectTime(t *testing.T) {
	now := time.Now()

	var scanned Time
	if err := scanned.Scan(SQLite.Time(now)); err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	if !scanned.Time.Equal(now) {
		t.Errorf("round trip = %v, want %v", scanned.Time, now)
	}

	if v, ok := Postgres.Time(now).(time.Time); !ok || !v.Equal(now) {
		t.Errorf("Postgres.Time() = %v, want native time", Postgres.Time(now))
	}

	if SQLite.NullTime(nil) != nil {
		t.Error("NullTime(nil) should be nil")
	}
}

// TestOpenMemory verifies the embedded schema is applied
func TestOpenMemory(t *testing.T) {
	db := OpenMemory(t)

	for _, table := range []string{"claims", "policies"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}
