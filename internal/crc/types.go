package crc

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when no authoritative rule set exists for a
// site. Expired rows also yield ErrNotFound from Get; callers that
// need the distinction list with IncludeExpired.
var ErrNotFound = errors.New("rule set not found")

// Recommendation is the enumerated outcome of evaluating an external
// policy document.
type Recommendation string

const (
	RecommendAllow               Recommendation = "ALLOW"
	RecommendAllowWithConditions Recommendation = "ALLOW_WITH_CONDITIONS"
	RecommendDeny                Recommendation = "DENY"
	RecommendUnknown             Recommendation = "UNKNOWN"
)

// Valid reports whether r is one of the defined recommendations.
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendAllow, RecommendAllowWithConditions, RecommendDeny, RecommendUnknown:
		return true
	}
	return false
}

// RuleSet is a cached, expiry-bound compliance rule set for a site.
//
// Rules is an opaque blob whose schema is owned by the rule-ingestion
// collaborator; the store never interprets it beyond canonical
// serialization for the signature.
type RuleSet struct {
	ID             string          `json:"id"`
	Site           string          `json:"site"`
	SourceHash     string          `json:"source_hash"`
	ParsedAt       time.Time       `json:"parsed_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	Recommendation Recommendation  `json:"recommendation"`
	Rules          json.RawMessage `json:"rules"`
	Signature      string          `json:"signature"`
}

// Expired reports whether the rule set has lapsed at the given instant.
func (rs RuleSet) Expired(now time.Time) bool {
	return !rs.ExpiresAt.After(now)
}

// Filter selects rule sets for List.
type Filter struct {
	// Site restricts results to one site when non-empty.
	Site string

	// IncludeExpired keeps lapsed rows in the result. Off by default:
	// ordinary listing mirrors Get's read-time TTL enforcement.
	IncludeExpired bool
}

// Stats is a read-only aggregation over the cache.
type Stats struct {
	TotalCount   int            `json:"total_count"`
	ExpiredCount int            `json:"expired_count"`
	BySite       map[string]int `json:"by_site"`
}
