package main

import (
	"path/filepath"
	"testing"

	"github.com/liamcoop/claims/internal/database"
)

// TestRunSQLite verifies up, version and down against a sqlite file
func TestRunSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claims.db")

	for _, command := range []string{"up", "up", "version", "down", "version"} {
		if err := run("sqlite", path, command, nil); err != nil {
			t.Fatalf("run(%s) failed: %v", command, err)
		}
	}

	if err := run("sqlite", path, "up", nil); err != nil {
		t.Fatalf("run(up) failed: %v", err)
	}
	db, err := database.Open(database.SQLite, path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`SELECT count(*) FROM claims`); err != nil {
		t.Errorf("claims table missing after up: %v", err)
	}
}

// TestRunErrors verifies invalid invocations fail
func TestRunErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claims.db")

	tests := []struct {
		name    string
		driver  string
		url     string
		command string
		args    []string
	}{
		{"memory driver", "memory", path, "up", nil},
		{"unknown driver", "mysql", path, "up", nil},
		{"missing url", "sqlite", "", "up", nil},
		{"unknown command", "sqlite", path, "sideways", nil},
		{"force without version", "sqlite", path, "force", nil},
		{"force bad version", "sqlite", path, "force", []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := run(tt.driver, tt.url, tt.command, tt.args); err == nil {
				t.Error("run() should fail")
			}
		})
	}
}
