package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, sql := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(sql), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadMigrations_ParsesAndOrders(t *testing.T) {
	// Written out of order on purpose; Up must apply them by version.
	dir := writeMigrations(t, map[string]string{
		"010_add_device_registration.sql": "CREATE TABLE device_registration (id UUID);",
		"001_consult_schema.sql":          "CREATE TABLE consult_request (id UUID);",
		"005_directory_schema.sql":        "CREATE TABLE department (id UUID);",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}

	wantVersions := []int{1, 5, 10}
	for i, want := range wantVersions {
		if migrations[i].Version != want {
			t.Errorf("migration %d: expected version %d, got %d", i, want, migrations[i].Version)
		}
	}
	if migrations[0].Name != "001_consult_schema.sql" {
		t.Errorf("unexpected first migration %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE consult_request (id UUID);" {
		t.Errorf("unexpected SQL loaded: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_SkipsUnversionedFiles(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_consult_schema.sql": "SELECT 1;",
		"notes.txt":              "deployment notes, not SQL",
		"rollback.sql":           "-- no version prefix",
		"abc_bad_prefix.sql":     "-- non-numeric prefix",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 1 || migrations[0].Version != 1 {
		t.Fatalf("expected only the versioned migration, got %d", len(migrations))
	}
}

func TestLoadMigrations_EmptyDir(t *testing.T) {
	migrations, err := NewMigrator(nil, t.TempDir()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations, got %d", len(migrations))
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	if _, err := NewMigrator(nil, filepath.Join(t.TempDir(), "absent")).LoadMigrations(); err == nil {
		t.Error("expected an error for a missing migrations directory")
	}
}

func TestMigrationStatus_PendingHasNoTimestamp(t *testing.T) {
	// Status against a live database joins LoadMigrations with the
	// schema_migrations table; here the applied set is simulated.
	dir := writeMigrations(t, map[string]string{
		"001_consult_schema.sql":   "SELECT 1;",
		"002_directory_schema.sql": "SELECT 2;",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}

	applied := map[int]bool{1: true}
	var statuses []MigrationStatus
	for _, mig := range migrations {
		statuses = append(statuses, MigrationStatus{
			Version: mig.Version,
			Name:    mig.Name,
			Applied: applied[mig.Version],
		})
	}

	if !statuses[0].Applied {
		t.Error("expected the first migration to report applied")
	}
	if statuses[1].Applied || statuses[1].AppliedAt != nil {
		t.Error("expected the second migration to be pending with no timestamp")
	}
}

func TestNewMigrator_Defaults(t *testing.T) {
	m := NewMigrator(nil, "migrations")
	if m == nil {
		t.Fatal("expected a migrator")
	}
	if m.dir != "migrations" {
		t.Errorf("unexpected dir %s", m.dir)
	}
}
