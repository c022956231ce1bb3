package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Options controls store behavior at Open time.
type Options struct {
	// RelaxedDurability switches synchronous mode from FULL to NORMAL.
	// A crash may then lose the most recent transactions, never corrupt
	// committed ones. Off by default.
	RelaxedDurability bool

	// SkipBackups disables pre-migration backup files. Used for
	// in-memory databases, where there is no file to copy.
	SkipBackups bool
}

// Store provides transactional access to the evidence and compliance
// tables. Safe for concurrent use; SQLite serializes writers on the
// single connection.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the SQLite database at path, applies pragmas,
// and runs pending schema migrations.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY and keeps evidence appends strictly serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, opts); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	s := &Store{db: db, path: path}

	if err := s.migrate(context.Background(), opts); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a transaction. Any error from fn rolls the
// transaction back atomically; commit is all-or-nothing. Context
// cancellation aborts the transaction the same way - no partial state
// is ever observable.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Backup writes a point-in-time consistent copy of the database to
// destination. VACUUM INTO runs against a read snapshot, so it is
// safe while writers are active. The destination must not exist.
func (s *Store) Backup(ctx context.Context, destination string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destination); err != nil {
		return &BackupError{Destination: destination, Err: err}
	}
	return nil
}

// IntegrityCheck runs SQLite's full integrity check. Returns a
// CorruptionError listing the reported problems, or nil when the
// database is intact.
func (s *Store) IntegrityCheck(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("integrity check: scan: %w", err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("integrity check: iterate: %w", err)
	}

	if len(problems) > 0 {
		return &CorruptionError{Problems: problems}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB, opts Options) error {
	synchronous := "PRAGMA synchronous = FULL"
	if opts.RelaxedDurability {
		synchronous = "PRAGMA synchronous = NORMAL"
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		synchronous,
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}
