package canon

import "testing"

func TestHashWithDomain_DomainSeparation(t *testing.T) {
	data := []byte("payload")

	a := HashWithDomain(DomainEvidence, data)
	b := HashWithDomain(DomainRuleSet, data)
	if a == b {
		t.Error("different domains produced identical hashes")
	}
}

func TestHashWithDomain_BoundaryAmbiguity(t *testing.T) {
	// Without the null separator, ("ab", "c") and ("a", "bc") would
	// collide.
	a := HashWithDomain("ab", []byte("c"))
	b := HashWithDomain("a", []byte("bc"))
	if a == b {
		t.Error("domain/data boundary is ambiguous")
	}
}

func TestChainHash_FoldsPredecessor(t *testing.T) {
	canonical := []byte(`{"event":"x"}`)

	a := ChainHash("prev-a", canonical)
	b := ChainHash("prev-b", canonical)
	if a == b {
		t.Error("chain hash ignores the predecessor hash")
	}

	if ChainHash("prev-a", canonical) != a {
		t.Error("chain hash is not deterministic")
	}
}

func TestGenesisHash_FixedConstant(t *testing.T) {
	// The genesis predecessor is a constant of the format; any drift
	// here would invalidate every existing chain.
	const want = "remedian/evidence/genesis/v1"
	if GenesisHash() != HashWithDomain(want, nil) {
		t.Error("genesis hash diverged from its defining constant")
	}
	if GenesisHash() != GenesisHash() {
		t.Error("genesis hash not stable")
	}
}

func TestRuleSetHash_ContentSensitive(t *testing.T) {
	a, err := RuleSetHash(map[string]any{"site": "example.com"})
	if err != nil {
		t.Fatalf("RuleSetHash failed: %v", err)
	}
	b, err := RuleSetHash(map[string]any{"site": "example.org"})
	if err != nil {
		t.Fatalf("RuleSetHash failed: %v", err)
	}
	if a == b {
		t.Error("different content produced identical rule set hashes")
	}
}
