package migrate

import (
	"strings"
	"testing"

	"enterprise-mfa/backend/internal/db"
)

func TestRun_EmptyDSN(t *testing.T) {
	err := Run("", "up")
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("err = %v, want DATABASE_URL error", err)
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	// Direction is validated before any source or database work.
	for _, dir := range []string{"", "sideways", "UP", "Up"} {
		err := Run("postgres://localhost/mfa", dir)
		if err == nil || !strings.Contains(err.Error(), "direction") {
			t.Errorf("Run(%q) err = %v, want direction error", dir, err)
		}
	}
}

func TestRun_MalformedDSN(t *testing.T) {
	if err := Run("not-a-dsn", "up"); err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}

func TestMigrationFilesPairUpAndDown(t *testing.T) {
	entries, err := db.MigrationFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no embedded migrations")
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}
	for name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			down := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
			if !names[down] {
				t.Errorf("%s has no matching down migration", name)
			}
		case strings.HasSuffix(name, ".down.sql"):
			up := strings.TrimSuffix(name, ".down.sql") + ".up.sql"
			if !names[up] {
				t.Errorf("%s has no matching up migration", name)
			}
		default:
			t.Errorf("unexpected file %s in migrations", name)
		}
	}
}
