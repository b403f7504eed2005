package migration

import (
	"testing"

	"github.com/smallbiznis/backoffice/pkg/db"
)

func TestMigrateFallsBackToAutoMigrate(t *testing.T) {
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"features", "roles", "role_features", "merchants", "users", "user_roles", "subscriptions", "sessions", "audit_logs"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
	// idempotent
	if err := Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := embeddedMigrations.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read embedded: %v", err)
	}
	if len(entries) == 0 || len(entries)%2 != 0 {
		t.Fatalf("expected paired up/down migrations, got %d files", len(entries))
	}
}
