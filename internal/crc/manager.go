// Package crc implements the Compliance Rule Cache: TTL-bounded
// storage of externally parsed rule sets, keyed by site.
//
// TTL is enforced at read time, not by a background reaper, so
// correctness never depends on a scheduler running. An absent reaper
// can only cost disk space (reclaimed by CleanExpired), never return
// a stale rule set.
package crc

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/remedian/remedian/internal/canon"
	"github.com/remedian/remedian/internal/signer"
	"github.com/remedian/remedian/internal/store"
)

// Manager owns the in-process logic over rule set rows: identity
// assignment, provenance signatures, and read-time TTL filtering.
// Safe for concurrent use; stores for different sites proceed in
// parallel, stores for the same site race and the later commit wins.
type Manager struct {
	store  *store.Store
	signer *signer.Signer
	now    func() time.Time
}

// NewManager creates a Manager over the given store and signing key.
func NewManager(st *store.Store, sg *signer.Signer) *Manager {
	return &Manager{
		store:  st,
		signer: sg,
		now:    time.Now,
	}
}

// Store writes a new rule set row for rs.Site, assigning ID and
// ParsedAt and signing the canonical content. The new row immediately
// shadows prior rows for Get purposes; history is retained for audit.
//
// Caller-provided ID, ParsedAt, and Signature are ignored.
func (m *Manager) Store(ctx context.Context, rs RuleSet) (RuleSet, error) {
	if rs.Site == "" {
		return RuleSet{}, fmt.Errorf("store rule set: site is required")
	}
	if !rs.Recommendation.Valid() {
		return RuleSet{}, fmt.Errorf("store rule set: invalid recommendation %q", rs.Recommendation)
	}

	rs.ID = uuid.New().String()
	rs.ParsedAt = m.now().UTC()
	if len(rs.Rules) == 0 {
		rs.Rules = json.RawMessage("null")
	}

	content, err := canonicalContent(rs)
	if err != nil {
		return RuleSet{}, fmt.Errorf("store rule set: %w", err)
	}
	hash, err := canon.RuleSetHash(content)
	if err != nil {
		return RuleSet{}, fmt.Errorf("store rule set: %w", err)
	}
	rs.Signature, err = m.signer.Sign([]byte(hash))
	if err != nil {
		return RuleSet{}, fmt.Errorf("store rule set: sign: %w", err)
	}

	_, err = m.store.DB().ExecContext(ctx, `
		INSERT INTO rule_sets
		(id, site, source_hash, parsed_at, expires_at, recommendation, rules, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rs.ID,
		rs.Site,
		rs.SourceHash,
		rs.ParsedAt.UnixNano(),
		rs.ExpiresAt.UnixNano(),
		string(rs.Recommendation),
		string(rs.Rules),
		rs.Signature,
	)
	if err != nil {
		return RuleSet{}, fmt.Errorf("store rule set: %w", err)
	}

	return rs, nil
}

// Get returns the authoritative rule set for site: the row with the
// greatest ParsedAt among non-expired rows. Expired or absent rows
// yield ErrNotFound, never a stale result.
func (m *Manager) Get(ctx context.Context, site string) (RuleSet, error) {
	row := m.store.DB().QueryRowContext(ctx, `
		SELECT id, site, source_hash, parsed_at, expires_at, recommendation, rules, signature
		FROM rule_sets
		WHERE site = ? AND expires_at > ?
		ORDER BY parsed_at DESC, id DESC
		LIMIT 1
	`, site, m.now().UnixNano())

	rs, err := scanRuleSetRow(row)
	if err == sql.ErrNoRows {
		return RuleSet{}, ErrNotFound
	}
	if err != nil {
		return RuleSet{}, fmt.Errorf("get rule set: %w", err)
	}
	return rs, nil
}

// List returns rule sets matching the filter, ordered by ParsedAt
// descending. Expired rows are excluded unless f.IncludeExpired.
//
// Returns an empty slice (not nil) when nothing matches.
func (m *Manager) List(ctx context.Context, f Filter) ([]RuleSet, error) {
	query := `
		SELECT id, site, source_hash, parsed_at, expires_at, recommendation, rules, signature
		FROM rule_sets
		WHERE 1=1
	`
	var args []any
	if f.Site != "" {
		query += " AND site = ?"
		args = append(args, f.Site)
	}
	if !f.IncludeExpired {
		query += " AND expires_at > ?"
		args = append(args, m.now().UnixNano())
	}
	query += " ORDER BY parsed_at DESC, id DESC"

	rows, err := m.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rule sets: %w", err)
	}
	defer rows.Close()

	var result []RuleSet
	for rows.Next() {
		rs, err := scanRuleSet(rows)
		if err != nil {
			return nil, fmt.Errorf("list rule sets: %w", err)
		}
		result = append(result, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rule sets: iterate: %w", err)
	}

	if result == nil {
		result = []RuleSet{}
	}
	return result, nil
}

// Invalidate marks all rows for site as immediately expired.
// Idempotent: rows already expired are untouched.
func (m *Manager) Invalidate(ctx context.Context, site string) error {
	now := m.now().UnixNano()
	_, err := m.store.DB().ExecContext(ctx, `
		UPDATE rule_sets SET expires_at = ? WHERE site = ? AND expires_at > ?
	`, now, site, now)
	if err != nil {
		return fmt.Errorf("invalidate rule sets: %w", err)
	}
	return nil
}

// Clear deletes all rule set rows. Used only when compliance checking
// is disabled system-wide.
func (m *Manager) Clear(ctx context.Context) error {
	if _, err := m.store.DB().ExecContext(ctx, `DELETE FROM rule_sets`); err != nil {
		return fmt.Errorf("clear rule sets: %w", err)
	}
	return nil
}

// CleanExpired deletes rows whose expiry passed more than grace ago.
// Purely space reclamation: Get already filters by expiry, so this is
// never required for correctness. Returns the number of rows removed.
func (m *Manager) CleanExpired(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := m.now().Add(-grace).UnixNano()
	res, err := m.store.DB().ExecContext(ctx, `
		DELETE FROM rule_sets WHERE expires_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clean expired rule sets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clean expired rule sets: rows affected: %w", err)
	}
	return n, nil
}

// Stats returns a read-only aggregation over all rows, expired included.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{BySite: make(map[string]int)}
	now := m.now().UnixNano()

	rows, err := m.store.DB().QueryContext(ctx, `
		SELECT site, COUNT(*), SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END)
		FROM rule_sets
		GROUP BY site
	`, now)
	if err != nil {
		return Stats{}, fmt.Errorf("rule set stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var site string
		var count, expired int
		if err := rows.Scan(&site, &count, &expired); err != nil {
			return Stats{}, fmt.Errorf("rule set stats: scan: %w", err)
		}
		stats.BySite[site] = count
		stats.TotalCount += count
		stats.ExpiredCount += expired
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("rule set stats: iterate: %w", err)
	}

	return stats, nil
}

// VerifySignature checks a rule set's provenance signature against a
// public key. It is a predicate: any mismatch or malformed content
// returns false.
func VerifySignature(pub ed25519.PublicKey, rs RuleSet) bool {
	content, err := canonicalContent(rs)
	if err != nil {
		return false
	}
	hash, err := canon.RuleSetHash(content)
	if err != nil {
		return false
	}
	return signer.Verify(pub, []byte(hash), rs.Signature)
}

// canonicalContent builds the signed content fields of a rule set.
// Signature is excluded; everything else participates.
func canonicalContent(rs RuleSet) (map[string]any, error) {
	var rules any
	if len(rs.Rules) > 0 {
		if err := json.Unmarshal(rs.Rules, &rules); err != nil {
			return nil, fmt.Errorf("decode rules blob: %w", err)
		}
	}

	return map[string]any{
		"id":             rs.ID,
		"site":           rs.Site,
		"source_hash":    rs.SourceHash,
		"parsed_at":      rs.ParsedAt.UnixNano(),
		"expires_at":     rs.ExpiresAt.UnixNano(),
		"recommendation": string(rs.Recommendation),
		"rules":          rules,
	}, nil
}

// scanRuleSet scans a result row into a RuleSet.
func scanRuleSet(rows *sql.Rows) (RuleSet, error) {
	var rs RuleSet
	var parsedAt, expiresAt int64
	var recommendation, rules string

	if err := rows.Scan(
		&rs.ID, &rs.Site, &rs.SourceHash, &parsedAt, &expiresAt,
		&recommendation, &rules, &rs.Signature,
	); err != nil {
		return RuleSet{}, fmt.Errorf("scan rule set: %w", err)
	}

	rs.ParsedAt = time.Unix(0, parsedAt).UTC()
	rs.ExpiresAt = time.Unix(0, expiresAt).UTC()
	rs.Recommendation = Recommendation(recommendation)
	rs.Rules = json.RawMessage(rules)
	return rs, nil
}

// scanRuleSetRow scans a single row into a RuleSet.
func scanRuleSetRow(row *sql.Row) (RuleSet, error) {
	var rs RuleSet
	var parsedAt, expiresAt int64
	var recommendation, rules string

	if err := row.Scan(
		&rs.ID, &rs.Site, &rs.SourceHash, &parsedAt, &expiresAt,
		&recommendation, &rules, &rs.Signature,
	); err != nil {
		return RuleSet{}, err
	}

	rs.ParsedAt = time.Unix(0, parsedAt).UTC()
	rs.ExpiresAt = time.Unix(0, expiresAt).UTC()
	rs.Recommendation = Recommendation(recommendation)
	rs.Rules = json.RawMessage(rules)
	return rs, nil
}
