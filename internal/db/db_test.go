package db

import (
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMigrationFiles_PairedAndOrdered(t *testing.T) {
	names, err := MigrationFiles()
	if err != nil {
		t.Fatalf("MigrationFiles() error: %v", err)
	}
	if len(names) == 0 || len(names)%2 != 0 {
		t.Fatalf("MigrationFiles() = %v, want non-empty up/down pairs", names)
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups[strings.TrimSuffix(n, ".up.sql")] = true
		case strings.HasSuffix(n, ".down.sql"):
			downs[strings.TrimSuffix(n, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %q", n)
		}
	}
	for base := range ups {
		if !downs[base] {
			t.Errorf("migration %q has no down file", base)
		}
	}
}

func TestMigrations_DoNotCreateActivityLogs(t *testing.T) {
	names, err := MigrationFiles()
	if err != nil {
		t.Fatalf("MigrationFiles() error: %v", err)
	}
	for _, n := range names {
		b, err := migrationsFS.ReadFile("migrations/" + n)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", n, err)
		}
		if strings.Contains(string(b), "activity_logs") {
			t.Errorf("%s references activity_logs; that table is owned by the audit schema manager", n)
		}
	}
}

func TestRunMigrations_InvalidDirection(t *testing.T) {
	conn, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer conn.Close()

	// The postgres driver queries the server before the direction is checked,
	// so an unprepared mock fails early; either way an error must be returned.
	if err := RunMigrations(conn, "sideways"); err == nil {
		t.Error("RunMigrations() expected error for invalid direction, got nil")
	}
}
