package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// A migration is an ordered, immutable schema change. The SQL text is
// compiled into the binary; its checksum is recorded on first apply
// and verified on every startup to detect edited migrations.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations are strictly ordered and forward-only. Never edit an
// entry after it has shipped; append a new version instead.
var migrations = []migration{
	{1, "base tables", migrationV1},
	{2, "credential hash index", migrationV2},
}

// crc_id and previous_entry_id carry no SQL foreign keys: chain hash
// verification owns entry linkage, and rule set rows must stay
// deletable (clear, clean) while evidence entries cite them.
const migrationV1 = `
CREATE TABLE IF NOT EXISTS rule_sets (
	id             TEXT PRIMARY KEY,
	site           TEXT NOT NULL,
	source_hash    TEXT NOT NULL,
	parsed_at      INTEGER NOT NULL,
	expires_at     INTEGER NOT NULL,
	recommendation TEXT NOT NULL,
	rules          TEXT NOT NULL,
	signature      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_sets_site ON rule_sets(site);
CREATE INDEX IF NOT EXISTS idx_rule_sets_expires_at ON rule_sets(expires_at);

CREATE TABLE IF NOT EXISTS evidence_entries (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp          INTEGER NOT NULL,
	event_type         TEXT NOT NULL,
	site               TEXT NOT NULL,
	credential_id_hash TEXT NOT NULL,
	action_payload     TEXT NOT NULL,
	validation_result  TEXT NOT NULL,
	crc_id             TEXT,    -- soft reference to rule_sets(id)
	previous_entry_id  INTEGER, -- soft reference to evidence_entries(id)
	chain_hash         TEXT NOT NULL,
	signature          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evidence_timestamp ON evidence_entries(timestamp);
CREATE INDEX IF NOT EXISTS idx_evidence_site ON evidence_entries(site);
`

const migrationV2 = `
CREATE INDEX IF NOT EXISTS idx_evidence_credential_hash
ON evidence_entries(credential_id_hash);
`

// migrationChecksum is the SHA-256 of a migration's SQL text.
func migrationChecksum(sqlText string) string {
	sum := sha256.Sum256([]byte(sqlText))
	return hex.EncodeToString(sum[:])
}

// migrate brings the schema up to the latest version. Each pending
// migration gets a backup, a checksum verification, and its own
// transaction; the first failure aborts, leaving the database at the
// last successfully applied version.
func (s *Store) migrate(ctx context.Context, opts Options) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			checksum   TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	latest := migrations[len(migrations)-1].Version
	if current > latest {
		return fmt.Errorf("schema version %d, binary supports up to %d: %w", current, latest, ErrSchemaTooNew)
	}

	if err := s.verifyAppliedChecksums(ctx); err != nil {
		return err
	}

	if current == latest {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		// Checksum of the compiled-in SQL, recorded alongside the
		// version so later startups can detect edited migrations.
		sum := migrationChecksum(m.SQL)

		if !opts.SkipBackups && s.path != ":memory:" {
			dest := fmt.Sprintf("%s.pre-v%d.bak", s.path, m.Version)
			// VACUUM INTO refuses to overwrite; drop a stale copy first.
			if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
				return &MigrationError{Version: m.Version, Err: fmt.Errorf("remove stale backup: %w", err)}
			}
			if err := s.Backup(ctx, dest); err != nil {
				return &MigrationError{Version: m.Version, Err: err}
			}
			slog.Info("pre-migration backup written", "version", m.Version, "dest", dest)
		}

		err := s.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("apply: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO schema_migrations (version, checksum, applied_at)
				VALUES (?, ?, ?)
			`, m.Version, sum, time.Now().UnixNano()); err != nil {
				return fmt.Errorf("record version: %w", err)
			}
			return nil
		})
		if err != nil {
			return &MigrationError{Version: m.Version, Err: err}
		}

		slog.Info("schema migration applied", "version", m.Version, "name", m.Name)
	}

	return nil
}

// SchemaVersion returns the highest applied migration version, 0 for
// a fresh database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM schema_migrations
	`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// verifyAppliedChecksums compares the checksum recorded for every
// applied migration against the SQL text compiled into this binary.
func (s *Store) verifyAppliedChecksums(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, checksum FROM schema_migrations ORDER BY version ASC
	`)
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}
	defer rows.Close()

	recorded := make(map[int]string)
	for rows.Next() {
		var version int
		var checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return fmt.Errorf("scan applied migration: %w", err)
		}
		recorded[version] = checksum
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate applied migrations: %w", err)
	}

	for _, m := range migrations {
		want, ok := recorded[m.Version]
		if !ok {
			continue
		}
		got := migrationChecksum(m.SQL)
		if got != want {
			return &ChecksumMismatchError{Version: m.Version, Want: want, Got: got}
		}
	}

	return nil
}
