package evidence

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/remedian/remedian/internal/canon"
)

// ErrNotFound is returned when no entry exists for a requested id.
var ErrNotFound = errors.New("evidence entry not found")

// ErrChainEmpty is returned by Head when no entries exist.
var ErrChainEmpty = errors.New("evidence chain is empty")

// EventType classifies an evidence entry.
type EventType string

const (
	EventValidation     EventType = "VALIDATION"
	EventActionExecuted EventType = "ACTION_EXECUTED"
	EventActionDenied   EventType = "ACTION_DENIED"
	EventOverride       EventType = "OVERRIDE"
	EventSystem         EventType = "SYSTEM"
)

// Valid reports whether t is one of the defined event types.
func (t EventType) Valid() bool {
	switch t {
	case EventValidation, EventActionExecuted, EventActionDenied, EventOverride, EventSystem:
		return true
	}
	return false
}

// ValidationResult records the outcome a validator reached and which
// rule ids were applied.
type ValidationResult struct {
	Passed  bool     `json:"passed"`
	RuleIDs []string `json:"rule_ids,omitempty"`
}

// Entry is one record in the evidence chain. Entries are created
// exclusively via Chain.AddEntry and never mutated afterwards.
//
// ID is assigned by the store in creation order, which is chain order.
// Timestamp is set by the chain, never the caller, preventing
// backdated records. CredentialIDHash is a one-way hash supplied by
// the caller; raw credential identifiers are never stored.
type Entry struct {
	ID               int64           `json:"id"`
	Timestamp        time.Time       `json:"timestamp"`
	EventType        EventType       `json:"event_type"`
	Site             string          `json:"site"`
	CredentialIDHash string          `json:"credential_id_hash"`
	ActionPayload    json.RawMessage `json:"action_payload"`
	ValidationResult ValidationResult `json:"validation_result"`
	CRCID            *string         `json:"crc_id,omitempty"`
	PreviousEntryID  *int64          `json:"previous_entry_id,omitempty"`
	ChainHash        string          `json:"chain_hash"`
	Signature        string          `json:"signature"`
}

// Filter selects entries for Export. Zero values mean "no bound".
type Filter struct {
	From             time.Time
	To               time.Time
	Site             string
	CredentialIDHash string
	EventType        EventType
}

// Report is the result of a chain verification walk.
type Report struct {
	Valid bool `json:"valid"`

	// BrokenAtID identifies the first entry that fails verification.
	// Nil when Valid.
	BrokenAtID *int64 `json:"broken_at_id,omitempty"`

	// Checked is the number of entries the walk visited.
	Checked int `json:"checked"`
}

// canonicalContent builds the hashable content fields of an entry.
// Signature and ChainHash are excluded by definition; ID is excluded
// because it is assigned by the store after the hash is computed.
// Chain position is still bound via PreviousEntryID and the folded-in
// predecessor hash.
func canonicalContent(e Entry) (map[string]any, error) {
	var payload any
	if len(e.ActionPayload) > 0 {
		if err := json.Unmarshal(e.ActionPayload, &payload); err != nil {
			return nil, fmt.Errorf("decode action payload: %w", err)
		}
	}

	ruleIDs := make([]any, len(e.ValidationResult.RuleIDs))
	for i, id := range e.ValidationResult.RuleIDs {
		ruleIDs[i] = id
	}

	var crcID any
	if e.CRCID != nil {
		crcID = *e.CRCID
	}
	var prevID any
	if e.PreviousEntryID != nil {
		prevID = *e.PreviousEntryID
	}

	return map[string]any{
		"timestamp":          e.Timestamp.UnixNano(),
		"event_type":         string(e.EventType),
		"site":               e.Site,
		"credential_id_hash": e.CredentialIDHash,
		"action_payload":     payload,
		"validation_result": map[string]any{
			"passed":   e.ValidationResult.Passed,
			"rule_ids": ruleIDs,
		},
		"crc_id":            crcID,
		"previous_entry_id": prevID,
	}, nil
}

// contentChainHash recomputes the chain hash an entry must carry given
// its predecessor's chain hash.
func contentChainHash(e Entry, prevChainHash string) (string, error) {
	content, err := canonicalContent(e)
	if err != nil {
		return "", err
	}
	canonical, err := canon.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("marshal canonical content: %w", err)
	}
	return canon.ChainHash(prevChainHash, canonical), nil
}
