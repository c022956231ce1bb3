// Package service wires the durable store, rule cache, and evidence
// chain into the facade the validation and rotation layers call.
//
// The facade owns resilience policy: transient storage errors on
// individual operations are retried once with backoff here, never
// inside the store (whose job is atomicity, not resilience).
// Integrity violations are never retried - they indicate a bug or
// tampering and are surfaced, not masked.
package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/remedian/remedian/internal/config"
	"github.com/remedian/remedian/internal/crc"
	"github.com/remedian/remedian/internal/evidence"
	"github.com/remedian/remedian/internal/signer"
	"github.com/remedian/remedian/internal/store"
)

// retryBackoff is the pause before the single retry of a transient
// storage failure.
const retryBackoff = 50 * time.Millisecond

// IntegrityError reports a chain verification failure. Never
// auto-repaired; always surfaced to an operator with the exact entry
// where the chain first breaks.
type IntegrityError struct {
	BrokenAtID int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("evidence chain integrity violation at entry %d", e.BrokenAtID)
}

// Service is the integration facade over the evidence and compliance
// store. Safe for concurrent use.
type Service struct {
	cfg    config.Config
	store  *store.Store
	signer *signer.Signer
	rules  *crc.Manager
	chain  *evidence.Chain

	// degraded is set when the on-disk database could not be opened
	// and the service fell back to an in-memory store. Guarantees hold
	// in-process but nothing persists.
	degraded bool
	openErr  error
}

// Open builds the service: signing key, durable store (with in-memory
// fallback), rule cache, and evidence chain.
//
// Storage unavailability is fatal to persistence, not to the process:
// the service keeps running against a SQLite in-memory database with
// a visible warning state, so remediation can proceed with
// best-effort, in-process-only evidence.
func Open(ctx context.Context, cfg config.Config) (*Service, error) {
	var sg *signer.Signer
	var err error
	if cfg.KeyPath != "" {
		sg, err = signer.LoadOrGenerate(cfg.KeyPath)
	} else {
		sg, err = signer.Generate()
	}
	if err != nil {
		return nil, fmt.Errorf("open service: %w", err)
	}

	svc := &Service{cfg: cfg, signer: sg}

	opts := store.Options{RelaxedDurability: cfg.RelaxedDurability}
	st, err := store.Open(cfg.DBPath, opts)
	if err != nil {
		// Migration problems must halt startup: running against a
		// partially migrated or tampered schema is worse than not
		// running. Only plain storage unavailability degrades.
		var me *store.MigrationError
		var ce *store.ChecksumMismatchError
		if errors.As(err, &me) || errors.As(err, &ce) || errors.Is(err, store.ErrSchemaTooNew) {
			sg.Close()
			return nil, fmt.Errorf("open service: %w", err)
		}

		slog.Warn("durable store unavailable, falling back to in-memory database",
			"path", cfg.DBPath, "error", err)
		svc.degraded = true
		svc.openErr = err

		st, err = store.Open(":memory:", store.Options{SkipBackups: true})
		if err != nil {
			sg.Close()
			return nil, fmt.Errorf("open service: in-memory fallback: %w", err)
		}
	}
	svc.store = st

	svc.rules = crc.NewManager(st, sg)

	svc.chain, err = evidence.NewChain(ctx, st, sg)
	if err != nil {
		st.Close()
		sg.Close()
		return nil, fmt.Errorf("open service: %w", err)
	}

	slog.Info("evidence and compliance store ready",
		"db", st.Path(), "degraded", svc.degraded, "public_key", sg.PublicKeyHex())
	return svc, nil
}

// Close releases the store and zeroes the signing key.
func (s *Service) Close() error {
	defer s.signer.Close()
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close service: %w", err)
	}
	return nil
}

// RecordAction appends a signed evidence entry describing a validated
// or executed remediation action.
func (s *Service) RecordAction(ctx context.Context, in evidence.AddEntryInput) (evidence.Entry, error) {
	entry, err := s.chain.AddEntry(ctx, in)
	if err != nil && retryable(err) {
		slog.Warn("record action failed, retrying once", "error", err)
		time.Sleep(retryBackoff)
		entry, err = s.chain.AddEntry(ctx, in)
	}
	if err != nil {
		return evidence.Entry{}, err
	}

	slog.Info("action recorded",
		"entry", entry.ID, "event", entry.EventType, "site", entry.Site)
	return entry, nil
}

// IngestRuleSet stores an externally parsed rule set for a site.
func (s *Service) IngestRuleSet(ctx context.Context, rs crc.RuleSet) (crc.RuleSet, error) {
	stored, err := s.rules.Store(ctx, rs)
	if err != nil && retryable(err) {
		slog.Warn("rule set ingest failed, retrying once", "site", rs.Site, "error", err)
		time.Sleep(retryBackoff)
		stored, err = s.rules.Store(ctx, rs)
	}
	if err != nil {
		return crc.RuleSet{}, err
	}

	slog.Info("rule set ingested",
		"id", stored.ID, "site", stored.Site, "expires_at", stored.ExpiresAt)
	return stored, nil
}

// ExportEvidence returns evidence entries matching the filter, in
// chain order.
func (s *Service) ExportEvidence(ctx context.Context, f evidence.Filter) ([]evidence.Entry, error) {
	return s.chain.Export(ctx, f)
}

// GetEntry retrieves a single evidence entry.
func (s *Service) GetEntry(ctx context.Context, id int64) (evidence.Entry, error) {
	return s.chain.GetEntry(ctx, id)
}

// VerifyChain walks the full chain and reports the first break, if
// any. A broken chain is logged at error level and returned as an
// IntegrityError alongside the report.
func (s *Service) VerifyChain(ctx context.Context) (evidence.Report, error) {
	report, err := s.chain.VerifyChain(ctx, 0, 0)
	if err != nil {
		return evidence.Report{}, fmt.Errorf("verify chain: %w", err)
	}
	if !report.Valid {
		slog.Error("evidence chain verification failed", "broken_at", *report.BrokenAtID)
		return report, &IntegrityError{BrokenAtID: *report.BrokenAtID}
	}
	return report, nil
}

// ListRuleSets exposes CRC listing to inspection tooling.
func (s *Service) ListRuleSets(ctx context.Context, f crc.Filter) ([]crc.RuleSet, error) {
	return s.rules.List(ctx, f)
}

// InvalidateRuleSets marks all cached rule sets for a site as expired.
func (s *Service) InvalidateRuleSets(ctx context.Context, site string) error {
	return s.rules.Invalidate(ctx, site)
}

// CleanExpired reclaims rule set rows past the configured grace window.
func (s *Service) CleanExpired(ctx context.Context) (int64, error) {
	n, err := s.rules.CleanExpired(ctx, s.cfg.CleanGrace)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("expired rule sets reclaimed", "rows", n)
	}
	return n, nil
}

// Backup writes a point-in-time consistent copy of the database.
func (s *Service) Backup(ctx context.Context, destination string) error {
	if err := s.store.Backup(ctx, destination); err != nil {
		return err
	}
	slog.Info("backup written", "dest", destination)
	return nil
}

// PublicKey returns the chain verification key.
func (s *Service) PublicKey() ed25519.PublicKey {
	return s.chain.PublicKey()
}

// retryable reports whether an error is worth the single transient
// retry. Validation errors and context cancellation are not; they
// will fail identically again.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ie *IntegrityError
	if errors.As(err, &ie) {
		return false
	}
	// Input validation failures are deterministic.
	msg := err.Error()
	for _, sub := range []string{"invalid event type", "is required", "invalid recommendation"} {
		if strings.Contains(msg, sub) {
			return false
		}
	}
	return true
}
