package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for hash computation. Version suffix enables future
// algorithm migration without ambiguity against old hashes.
const (
	DomainEvidence = "remedian/evidence/v1"
	DomainRuleSet  = "remedian/ruleset/v1"
	DomainGenesis  = "remedian/evidence/genesis/v1"
)

// HashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00}) // Null separator - CRITICAL for security
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ChainHash binds an entry to its predecessor: the previous entry's
// chain hash is folded in ahead of the entry's canonical bytes, so
// altering any ancestor invalidates every descendant hash.
func ChainHash(prevChainHash string, canonical []byte) string {
	h := sha256.New()
	h.Write([]byte(DomainEvidence))
	h.Write([]byte{0x00})
	h.Write([]byte(prevChainHash))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}

// GenesisHash returns the fixed predecessor hash for the first entry
// in a chain. It is a compile-time constant of the format, never
// derived from caller input.
func GenesisHash() string {
	return HashWithDomain(DomainGenesis, nil)
}

// RuleSetHash computes the content hash signed over a rule set.
// Returns error if the rule set cannot be canonically marshaled.
func RuleSetHash(obj map[string]any) (string, error) {
	canonical, err := Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("RuleSetHash: failed to marshal: %w", err)
	}
	return HashWithDomain(DomainRuleSet, canonical), nil
}
