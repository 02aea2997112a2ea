package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"voice-agent-platform/internal/db"
)

func TestRun_RejectsEmptyURL(t *testing.T) {
	for _, dsn := range []string{"", "   "} {
		if err := Run(dsn, DirectionUp); err == nil {
			t.Fatalf("expected error for %q", dsn)
		}
	}
}

func TestRun_RejectsUnknownDirection(t *testing.T) {
	for _, d := range []string{"", "UP", "sideways"} {
		err := Run("postgres://localhost/voice", d)
		if err == nil || !strings.Contains(err.Error(), "direction") {
			t.Fatalf("expected direction error for %q, got %v", d, err)
		}
	}
}

func TestMigrationFS_PairsUpAndDown(t *testing.T) {
	names, err := fs.Glob(db.MigrationFS, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	ups, downs := 0, 0
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups++
		case strings.HasSuffix(n, ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("expected paired migrations, got %d up / %d down", ups, downs)
	}

	b, err := fs.ReadFile(db.MigrationFS, "migrations/0001_init.up.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "calls_room_name_key") {
		t.Fatalf("expected room_name unique index in initial migration")
	}
}
