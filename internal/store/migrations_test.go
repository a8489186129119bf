package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

var (
	migrationsDir = filepath.Join("..", "..", "db", "migrations")
	schemaTables  = []string{
		"users", "refresh_sessions", "revoked_access_tokens", "projects", "project_members",
		"tasks", "task_comments", "notifications", "invitations", "task_attachments",
	}
)

func TestMigrationFilesPairUp(t *testing.T) {
	ups, err := migrationFiles(migrationsDir, ".up.sql")
	if err != nil {
		t.Fatalf("list up migrations: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no up migrations found")
	}
	versionPattern := regexp.MustCompile(`^\d{4}_[a-z0-9_]+\.up\.sql$`)
	for _, up := range ups {
		name := filepath.Base(up)
		if !versionPattern.MatchString(name) {
			t.Errorf("%s does not follow NNNN_name.up.sql", name)
		}
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := os.Stat(down); err != nil {
			t.Errorf("%s has no down migration", name)
		}
	}
}

func TestInitMigrationCoversSchema(t *testing.T) {
	up, err := os.ReadFile(filepath.Join(migrationsDir, "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read up migration: %v", err)
	}
	down, err := os.ReadFile(filepath.Join(migrationsDir, "0001_init.down.sql"))
	if err != nil {
		t.Fatalf("read down migration: %v", err)
	}
	for _, table := range schemaTables {
		if !strings.Contains(string(up), "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Errorf("up migration does not create %s", table)
		}
		if !strings.Contains(string(down), "DROP TABLE IF EXISTS "+table+";") {
			t.Errorf("down migration does not drop %s", table)
		}
	}
}

// TestApplyMigrationsPostgres runs against a disposable database.
func TestApplyMigrationsPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("TEAMWORKS_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEAMWORKS_TEST_DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()
	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	applied, err := ApplyMigrations(ctx, db, migrationsDir)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if len(applied) == 0 || applied[0] != "0001_init.up.sql" {
		t.Fatalf("unexpected applied versions %v", applied)
	}
	for _, table := range schemaTables {
		if !tableExists(ctx, t, db, table) {
			t.Errorf("table %s missing after migration", table)
		}
	}

	again, err := ApplyMigrations(ctx, db, migrationsDir)
	if err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected re-apply to be a no-op, got %v", again)
	}
}

func tableExists(ctx context.Context, t *testing.T, db *sql.DB, table string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT to_regclass('public.' || $1) IS NOT NULL`, table).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", table, err)
	}
	return exists
}

func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}
