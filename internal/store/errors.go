package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaTooNew is returned when the database reports a schema
// version newer than this binary knows. Migration is forward-only;
// downgrading requires an explicit operator decision, never a guess.
var ErrSchemaTooNew = errors.New("database schema is newer than this binary supports")

// MigrationError reports a failed schema migration. The database is
// left at the last successfully applied version.
type MigrationError struct {
	Version int
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration to v%d failed: %v", e.Version, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// ChecksumMismatchError indicates a migration's SQL text does not
// match the checksum recorded when it was first applied, or the
// checksum compiled into the binary. It means the migration was
// edited after the fact and must not be trusted.
type ChecksumMismatchError struct {
	Version int
	Want    string
	Got     string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("migration v%d checksum mismatch: recorded %s, computed %s", e.Version, e.Want, e.Got)
}

// BackupError reports a failed backup attempt.
type BackupError struct {
	Destination string
	Err         error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("backup to %s failed: %v", e.Destination, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }

// CorruptionError reports problems found by an integrity check.
type CorruptionError struct {
	Problems []string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corruption detected: %s", strings.Join(e.Problems, "; "))
}
