package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path, Options{})
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"rule_sets", "evidence_entries", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db", Options{})
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := createTestStore(t)

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	// FULL durability is the default: 2 in PRAGMA encoding.
	if err := s.verifyPragma("synchronous", "2"); err != nil {
		t.Error(err)
	}
}

func TestOpen_RelaxedDurability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, Options{RelaxedDurability: true})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// NORMAL is 1 in PRAGMA encoding.
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
}

func TestMigrate_RecordsVersionsAndChecksums(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	latest := migrations[len(migrations)-1].Version
	if version != latest {
		t.Errorf("schema version = %d, want %d", version, latest)
	}

	for _, m := range migrations {
		var checksum string
		err := s.db.QueryRow(
			"SELECT checksum FROM schema_migrations WHERE version = ?", m.Version,
		).Scan(&checksum)
		if err != nil {
			t.Fatalf("migration v%d not recorded: %v", m.Version, err)
		}
		if want := migrationChecksum(m.SQL); checksum != want {
			t.Errorf("v%d checksum = %s, want %s", m.Version, checksum, want)
		}
	}
}

func TestMigrate_SecondRunIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	ctx := context.Background()

	v1, err := s1.SchemaVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var applied1 int
	if err := s1.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied1); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	// Reopen: current == latest, so nothing may change.
	s2, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.SchemaVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var applied2 int
	if err := s2.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied2); err != nil {
		t.Fatal(err)
	}

	if v1 != v2 || applied1 != applied2 {
		t.Errorf("re-migration changed state: version %d->%d, rows %d->%d", v1, v2, applied1, applied2)
	}
}

func TestMigrate_RefusesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	_, err = s.db.Exec(
		"INSERT INTO schema_migrations (version, checksum, applied_at) VALUES (99, 'future', 0)",
	)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	_, err = Open(path, Options{})
	if !errors.Is(err, ErrSchemaTooNew) {
		t.Errorf("Open() on newer schema = %v, want ErrSchemaTooNew", err)
	}
}

func TestMigrate_DetectsEditedMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	// Simulate a migration file edited after it was applied: the
	// recorded checksum no longer matches the compiled-in SQL.
	_, err = s.db.Exec("UPDATE schema_migrations SET checksum = 'tampered' WHERE version = 1")
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	_, err = Open(path, Options{})
	var mismatch *ChecksumMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Open() after checksum tamper = %v, want ChecksumMismatchError", err)
	}
	if mismatch.Version != 1 {
		t.Errorf("mismatch version = %d, want 1", mismatch.Version)
	}
}

func TestMigrate_WritesPreMigrationBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Migration v2 runs on a database that already exists (v1
	// applied), so it must leave a backup behind.
	if _, err := os.Stat(path + ".pre-v2.bak"); err != nil {
		t.Errorf("pre-v2 backup missing: %v", err)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			"INSERT INTO rule_sets (id, site, source_hash, parsed_at, expires_at, recommendation, rules, signature) VALUES ('x','s','h',1,2,'ALLOW','null','sig')",
		); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("WithTx error = %v, want sentinel", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM rule_sets").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("rolled-back insert is visible: %d rows", count)
	}
}

func TestBackup_ConsistentCopyIsOpenable(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"), Options{})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	_, err = s.db.Exec(
		"INSERT INTO rule_sets (id, site, source_hash, parsed_at, expires_at, recommendation, rules, signature) VALUES ('x','s','h',1,2,'ALLOW','null','sig')",
	)
	if err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(dir, "backup.db")
	if err := s.Backup(ctx, dest); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	// The backup is independently restorable.
	restored, err := Open(dest, Options{})
	if err != nil {
		t.Fatalf("Open(backup) failed: %v", err)
	}
	defer restored.Close()

	var count int
	if err := restored.db.QueryRow("SELECT COUNT(*) FROM rule_sets").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("backup has %d rule set rows, want 1", count)
	}
}

func TestBackup_FailsOnBadDestination(t *testing.T) {
	s := createTestStore(t)

	err := s.Backup(context.Background(), "/nonexistent/dir/backup.db")
	var be *BackupError
	if !errors.As(err, &be) {
		t.Errorf("Backup to bad dest = %v, want BackupError", err)
	}
}

func TestIntegrityCheck_HealthyDatabase(t *testing.T) {
	s := createTestStore(t)

	if err := s.IntegrityCheck(context.Background()); err != nil {
		t.Errorf("IntegrityCheck on fresh database = %v, want nil", err)
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}
