package migrations

import (
	"testing"

	"github.com/carepath/portal/internal/platform/db"
)

func TestEmbeddedMigrationsLoad(t *testing.T) {
	migrations, err := db.NewMigrator(nil, Files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 embedded migrations, got %d", len(migrations))
	}
	for i, mig := range migrations {
		if mig.Version != i+1 {
			t.Errorf("migration[%d]: expected version %d, got %d", i, i+1, mig.Version)
		}
		if mig.SQL == "" {
			t.Errorf("migration %s is empty", mig.Name)
		}
	}
}
