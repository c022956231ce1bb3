package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/remedian/remedian/internal/crc"
	"github.com/remedian/remedian/internal/evidence"
)

// ProposedAction describes a remediation the orchestrator wants to
// perform against a site.
type ProposedAction struct {
	// Type names the action, e.g. "rotate-password", "revoke-session".
	Type string `json:"type"`

	// CredentialIDHash is the one-way hash of the affected credential
	// identifier. Raw identifiers never reach this layer.
	CredentialIDHash string `json:"credential_id_hash"`

	// Params is opaque action detail, recorded verbatim as evidence.
	Params json.RawMessage `json:"params,omitempty"`
}

// Decision is the outcome of a compliance check.
type Decision struct {
	Outcome crc.Recommendation `json:"outcome"`

	// RuleSetID references the consulted rule set, empty when no
	// non-expired rules were cached for the site.
	RuleSetID string `json:"rule_set_id,omitempty"`

	// RuleIDs lists the rules that determined the outcome.
	RuleIDs []string `json:"rule_ids,omitempty"`

	// EvidenceID is the VALIDATION entry recorded for this check.
	EvidenceID int64 `json:"evidence_id"`

	Reason string `json:"reason"`
}

// siteRule is the structured shape the policy-parsing collaborator
// emits into the opaque rules blob. Rules that do not parse into this
// shape are ignored and the stored recommendation stands.
type siteRule struct {
	ID        string `json:"id"`
	Effect    string `json:"effect"` // "allow" | "deny" | "require"
	AppliesTo string `json:"applies_to,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// CheckCompliance consults the rule cache for site, evaluates the
// cached rules against the proposed action, and records a VALIDATION
// evidence entry referencing the consulted rule set.
//
// A cache miss (absent or expired rules) yields UNKNOWN, not an
// error: the caller decides whether to fetch fresh rules and retry or
// proceed under its own policy.
func (s *Service) CheckCompliance(ctx context.Context, site string, action ProposedAction) (Decision, error) {
	if action.CredentialIDHash == "" {
		return Decision{}, fmt.Errorf("check compliance: credential id hash is required")
	}

	decision := Decision{Outcome: crc.RecommendUnknown, Reason: "no cached rules for site"}

	rs, err := s.rules.Get(ctx, site)
	switch {
	case errors.Is(err, crc.ErrNotFound):
		// Miss: fall through with UNKNOWN.
	case err != nil:
		return Decision{}, fmt.Errorf("check compliance: %w", err)
	default:
		decision = evaluate(rs, action)
		decision.RuleSetID = rs.ID
	}

	payload, err := json.Marshal(action)
	if err != nil {
		return Decision{}, fmt.Errorf("check compliance: encode action: %w", err)
	}

	var crcID *string
	if decision.RuleSetID != "" {
		crcID = &decision.RuleSetID
	}

	entry, err := s.RecordAction(ctx, evidence.AddEntryInput{
		EventType:        evidence.EventValidation,
		Site:             site,
		CredentialIDHash: action.CredentialIDHash,
		ActionPayload:    payload,
		ValidationResult: evidence.ValidationResult{
			Passed:  decision.Outcome == crc.RecommendAllow || decision.Outcome == crc.RecommendAllowWithConditions,
			RuleIDs: decision.RuleIDs,
		},
		CRCID: crcID,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("check compliance: record validation: %w", err)
	}
	decision.EvidenceID = entry.ID

	slog.Debug("compliance checked",
		"site", site, "action", action.Type, "outcome", decision.Outcome)
	return decision, nil
}

// evaluate applies the cached rules to the proposed action. Deny
// rules dominate; matched require rules downgrade ALLOW to
// ALLOW_WITH_CONDITIONS; otherwise the stored recommendation stands.
func evaluate(rs crc.RuleSet, action ProposedAction) Decision {
	decision := Decision{
		Outcome: rs.Recommendation,
		Reason:  "stored recommendation",
	}

	var rules []siteRule
	if err := json.Unmarshal(rs.Rules, &rules); err != nil {
		// Opaque blob in a shape this validator does not understand;
		// the recommendation is still authoritative.
		return decision
	}

	var conditions []string
	for _, r := range rules {
		if !matches(r, action) {
			continue
		}
		switch r.Effect {
		case "deny":
			return Decision{
				Outcome: crc.RecommendDeny,
				RuleIDs: []string{r.ID},
				Reason:  fmt.Sprintf("denied by rule %s", r.ID),
			}
		case "require":
			conditions = append(conditions, r.ID)
		case "allow":
			decision.RuleIDs = append(decision.RuleIDs, r.ID)
		}
	}

	if len(conditions) > 0 && decision.Outcome != crc.RecommendDeny {
		decision.Outcome = crc.RecommendAllowWithConditions
		decision.RuleIDs = append(decision.RuleIDs, conditions...)
		decision.Reason = "conditions attached by matching rules"
	}

	return decision
}

// matches reports whether a rule applies to the action. An empty
// applies_to matches every action type.
func matches(r siteRule, action ProposedAction) bool {
	return r.AppliesTo == "" || r.AppliesTo == action.Type
}
