package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/remedian/remedian/internal/crc"
	"github.com/remedian/remedian/internal/evidence"
)

// Status is the coarse health of the store.
type Status string

const (
	// StatusOK means the durable store is healthy and persisting.
	StatusOK Status = "ok"

	// StatusDegraded means the on-disk store was unavailable and the
	// service is running against an in-memory database: guarantees
	// hold in-process, nothing persists.
	StatusDegraded Status = "degraded"
)

// Health is the health-check surface exposed to the service process
// and inspection tooling.
type Health struct {
	Status        Status `json:"status"`
	Warning       string `json:"warning,omitempty"`
	DBPath        string `json:"db_path"`
	SchemaVersion int    `json:"schema_version"`
	ChainLength   int64  `json:"chain_length"`
	Integrity     string `json:"integrity"`
}

// ServiceStats aggregates inspection counters across components.
type ServiceStats struct {
	CRC           crc.Stats `json:"crc"`
	ChainLength   int64     `json:"chain_length"`
	ChainHeadID   int64     `json:"chain_head_id,omitempty"`
	ChainHeadHash string    `json:"chain_head_hash,omitempty"`
	PublicKey     string    `json:"public_key"`
}

// HealthCheck reports store health, including degraded mode and the
// result of a storage integrity check.
func (s *Service) HealthCheck(ctx context.Context) (Health, error) {
	h := Health{
		Status:    StatusOK,
		DBPath:    s.store.Path(),
		Integrity: "ok",
	}
	if s.degraded {
		h.Status = StatusDegraded
		h.Warning = fmt.Sprintf("durable store unavailable, evidence is not persisting: %v", s.openErr)
	}

	version, err := s.store.SchemaVersion(ctx)
	if err != nil {
		return Health{}, fmt.Errorf("health check: %w", err)
	}
	h.SchemaVersion = version

	h.ChainLength, err = s.chain.Length(ctx)
	if err != nil {
		return Health{}, fmt.Errorf("health check: %w", err)
	}

	if err := s.store.IntegrityCheck(ctx); err != nil {
		h.Integrity = err.Error()
	}

	return h, nil
}

// GetStats returns read-only counters for inspection tooling.
func (s *Service) GetStats(ctx context.Context) (ServiceStats, error) {
	stats := ServiceStats{PublicKey: s.signer.PublicKeyHex()}

	crcStats, err := s.rules.Stats(ctx)
	if err != nil {
		return ServiceStats{}, fmt.Errorf("get stats: %w", err)
	}
	stats.CRC = crcStats

	stats.ChainLength, err = s.chain.Length(ctx)
	if err != nil {
		return ServiceStats{}, fmt.Errorf("get stats: %w", err)
	}

	head, err := s.chain.Head(ctx)
	switch {
	case err == nil:
		stats.ChainHeadID = head.ID
		stats.ChainHeadHash = head.ChainHash
	case errors.Is(err, evidence.ErrChainEmpty):
		// No head to report.
	default:
		return ServiceStats{}, fmt.Errorf("get stats: %w", err)
	}

	return stats, nil
}
