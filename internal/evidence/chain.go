// Package evidence implements the append-only, hash-linked, signed
// evidence chain.
//
// Each entry's chain hash folds in its predecessor's chain hash, so
// altering or deleting any historical entry invalidates every
// subsequent hash. VerifyChain is therefore a true tamper-evidence
// check, not merely a per-row signature check.
package evidence

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/remedian/remedian/internal/canon"
	"github.com/remedian/remedian/internal/signer"
	"github.com/remedian/remedian/internal/store"
)

// Chain appends signed, hash-linked entries and verifies them.
//
// The in-memory head cache is purely an O(1)-append optimization: the
// authoritative head is always re-read inside the append transaction,
// so a second writer sharing the database file can never cause two
// entries to claim the same predecessor.
type Chain struct {
	store  *store.Store
	signer *signer.Signer
	now    func() time.Time

	mu   sync.Mutex
	head headState
}

type headState struct {
	id        int64
	chainHash string
	present   bool
}

// NewChain creates a Chain over the given store and signing key,
// recomputing the head pointer from storage.
func NewChain(ctx context.Context, st *store.Store, sg *signer.Signer) (*Chain, error) {
	c := &Chain{
		store:  st,
		signer: sg,
		now:    time.Now,
	}

	var id int64
	var chainHash string
	err := st.DB().QueryRowContext(ctx, `
		SELECT id, chain_hash FROM evidence_entries ORDER BY id DESC LIMIT 1
	`).Scan(&id, &chainHash)
	switch {
	case err == sql.ErrNoRows:
		// Fresh chain; genesis state.
	case err != nil:
		return nil, fmt.Errorf("recover chain head: %w", err)
	default:
		c.head = headState{id: id, chainHash: chainHash, present: true}
	}

	return c, nil
}

// AddEntryInput carries the caller-supplied fields of a new entry.
// Timestamp, chain position, hash, and signature are assigned by the
// chain.
type AddEntryInput struct {
	EventType        EventType
	Site             string
	CredentialIDHash string
	ActionPayload    json.RawMessage
	ValidationResult ValidationResult
	CRCID            *string
}

// AddEntry appends a signed entry to the chain.
//
// The append is atomic: the predecessor is read, the row inserted, and
// the head advanced inside a single transaction. Concurrent appends
// serialize on the chain mutex in-process and on the store's single
// writer connection across processes. The head cache is updated only
// after the transaction commits.
func (c *Chain) AddEntry(ctx context.Context, in AddEntryInput) (Entry, error) {
	if !in.EventType.Valid() {
		return Entry{}, fmt.Errorf("add entry: invalid event type %q", in.EventType)
	}
	if in.CredentialIDHash == "" {
		return Entry{}, fmt.Errorf("add entry: credential id hash is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := Entry{
		Timestamp:        c.now().UTC(),
		EventType:        in.EventType,
		Site:             in.Site,
		CredentialIDHash: in.CredentialIDHash,
		ActionPayload:    in.ActionPayload,
		ValidationResult: in.ValidationResult,
		CRCID:            in.CRCID,
	}
	if len(entry.ActionPayload) == 0 {
		entry.ActionPayload = json.RawMessage("null")
	}

	err := c.store.WithTx(ctx, func(tx *sql.Tx) error {
		// Authoritative head read. The cache may be stale when another
		// process shares the file; this read inside the transaction is
		// what actually orders the chain.
		prevChainHash := canon.GenesisHash()
		var prevID int64
		err := tx.QueryRowContext(ctx, `
			SELECT id, chain_hash FROM evidence_entries ORDER BY id DESC LIMIT 1
		`).Scan(&prevID, &prevChainHash)
		switch {
		case err == sql.ErrNoRows:
			entry.PreviousEntryID = nil
			prevChainHash = canon.GenesisHash()
		case err != nil:
			return fmt.Errorf("read head: %w", err)
		default:
			entry.PreviousEntryID = &prevID
		}

		hash, err := contentChainHash(entry, prevChainHash)
		if err != nil {
			return err
		}
		entry.ChainHash = hash

		entry.Signature, err = c.signer.Sign([]byte(entry.ChainHash))
		if err != nil {
			return fmt.Errorf("sign chain hash: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO evidence_entries
			(timestamp, event_type, site, credential_id_hash, action_payload,
			 validation_result, crc_id, previous_entry_id, chain_hash, signature)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			entry.Timestamp.UnixNano(),
			string(entry.EventType),
			entry.Site,
			entry.CredentialIDHash,
			string(entry.ActionPayload),
			marshalValidationResult(entry.ValidationResult),
			entry.CRCID,
			entry.PreviousEntryID,
			entry.ChainHash,
			entry.Signature,
		)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}

		entry.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("add entry: %w", err)
	}

	// Cache update strictly after commit.
	c.head = headState{id: entry.ID, chainHash: entry.ChainHash, present: true}

	return entry, nil
}

// GetEntry retrieves a single entry by id. Returns ErrNotFound when
// no such entry exists.
func (c *Chain) GetEntry(ctx context.Context, id int64) (Entry, error) {
	row := c.store.DB().QueryRowContext(ctx, `
		SELECT id, timestamp, event_type, site, credential_id_hash, action_payload,
		       validation_result, crc_id, previous_entry_id, chain_hash, signature
		FROM evidence_entries
		WHERE id = ?
	`, id)

	entry, err := scanEntryRow(row)
	if err == sql.ErrNoRows {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// Export returns entries matching the filter in chain order. Export is
// raw retrieval: it does not require valid signatures; validity is
// Verify/VerifyChain's concern.
//
// Returns an empty slice (not nil) when nothing matches.
func (c *Chain) Export(ctx context.Context, f Filter) ([]Entry, error) {
	query := `
		SELECT id, timestamp, event_type, site, credential_id_hash, action_payload,
		       validation_result, crc_id, previous_entry_id, chain_hash, signature
		FROM evidence_entries
		WHERE 1=1
	`
	var args []any
	if !f.From.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.From.UnixNano())
	}
	if !f.To.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, f.To.UnixNano())
	}
	if f.Site != "" {
		query += " AND site = ?"
		args = append(args, f.Site)
	}
	if f.CredentialIDHash != "" {
		query += " AND credential_id_hash = ?"
		args = append(args, f.CredentialIDHash)
	}
	if f.EventType != "" {
		query += " AND event_type = ?"
		args = append(args, string(f.EventType))
	}
	query += " ORDER BY id ASC"

	rows, err := c.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("export entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("export entries: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export entries: iterate: %w", err)
	}

	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Head returns the last committed entry, or ErrChainEmpty.
func (c *Chain) Head(ctx context.Context) (Entry, error) {
	row := c.store.DB().QueryRowContext(ctx, `
		SELECT id, timestamp, event_type, site, credential_id_hash, action_payload,
		       validation_result, crc_id, previous_entry_id, chain_hash, signature
		FROM evidence_entries
		ORDER BY id DESC
		LIMIT 1
	`)

	entry, err := scanEntryRow(row)
	if err == sql.ErrNoRows {
		return Entry{}, ErrChainEmpty
	}
	if err != nil {
		return Entry{}, fmt.Errorf("chain head: %w", err)
	}
	return entry, nil
}

// Length returns the number of committed entries.
func (c *Chain) Length(ctx context.Context) (int64, error) {
	var n int64
	err := c.store.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM evidence_entries
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("chain length: %w", err)
	}
	return n, nil
}

// PublicKey returns the verification key for external signature checks.
func (c *Chain) PublicKey() ed25519.PublicKey {
	return c.signer.PublicKey()
}

// Clear deletes every entry and resets the chain to genesis state.
// Destructive; intended for test/reset contexts only, and logged by
// the caller.
func (c *Chain) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM evidence_entries`); err != nil {
			return fmt.Errorf("delete entries: %w", err)
		}
		// Reset AUTOINCREMENT so a cleared chain starts over at id 1.
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM sqlite_sequence WHERE name = 'evidence_entries'
		`); err != nil {
			return fmt.Errorf("reset sequence: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear chain: %w", err)
	}

	c.head = headState{}
	return nil
}

// marshalValidationResult serializes a validation result for storage.
// The struct contains no unmarshalable types, so this cannot fail.
func marshalValidationResult(vr ValidationResult) string {
	b, _ := json.Marshal(vr)
	return string(b)
}

// scanEntry scans a result row into an Entry.
func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var ts int64
	var eventType, payload, vr string
	var crcID sql.NullString
	var prevID sql.NullInt64

	if err := rows.Scan(
		&e.ID, &ts, &eventType, &e.Site, &e.CredentialIDHash, &payload,
		&vr, &crcID, &prevID, &e.ChainHash, &e.Signature,
	); err != nil {
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}

	return buildEntry(e, ts, eventType, payload, vr, crcID, prevID)
}

// scanEntryRow scans a single row into an Entry.
func scanEntryRow(row *sql.Row) (Entry, error) {
	var e Entry
	var ts int64
	var eventType, payload, vr string
	var crcID sql.NullString
	var prevID sql.NullInt64

	if err := row.Scan(
		&e.ID, &ts, &eventType, &e.Site, &e.CredentialIDHash, &payload,
		&vr, &crcID, &prevID, &e.ChainHash, &e.Signature,
	); err != nil {
		return Entry{}, err
	}

	return buildEntry(e, ts, eventType, payload, vr, crcID, prevID)
}

func buildEntry(e Entry, ts int64, eventType, payload, vr string, crcID sql.NullString, prevID sql.NullInt64) (Entry, error) {
	e.Timestamp = time.Unix(0, ts).UTC()
	e.EventType = EventType(eventType)
	e.ActionPayload = json.RawMessage(payload)

	if err := json.Unmarshal([]byte(vr), &e.ValidationResult); err != nil {
		return Entry{}, fmt.Errorf("decode validation result: %w", err)
	}
	if crcID.Valid {
		e.CRCID = &crcID.String
	}
	if prevID.Valid {
		e.PreviousEntryID = &prevID.Int64
	}
	return e, nil
}
