package signer

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGenerate_SignVerify(t *testing.T) {
	s, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	defer s.Close()

	msg := []byte("chain-hash-bytes")
	sig, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if !Verify(s.PublicKey(), msg, sig) {
		t.Error("signature did not verify against the public key")
	}
	if Verify(s.PublicKey(), []byte("other message"), sig) {
		t.Error("signature verified against a different message")
	}
}

func TestVerify_MalformedInputIsFalseNotError(t *testing.T) {
	s, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	defer s.Close()

	if Verify(s.PublicKey(), []byte("msg"), "not-hex") {
		t.Error("malformed signature verified")
	}
	if Verify(s.PublicKey(), []byte("msg"), "abcd") {
		t.Error("truncated signature verified")
	}
	if Verify(nil, []byte("msg"), "") {
		t.Error("empty public key verified")
	}
}

func TestLoadOrGenerate_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remedian.key")

	s1, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("first LoadOrGenerate failed: %v", err)
	}
	sig, err := s1.Sign([]byte("msg"))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	s1.Close()

	// Second call loads the same key; old signatures still verify.
	s2, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("second LoadOrGenerate failed: %v", err)
	}
	defer s2.Close()

	if s2.PublicKeyHex() == "" {
		t.Fatal("loaded signer has no public key")
	}
	if !Verify(s2.PublicKey(), []byte("msg"), sig) {
		t.Error("signature from first key does not verify after reload")
	}
}

func TestLoadOrGenerate_KeyFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remedian.key")

	s, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("LoadOrGenerate failed: %v", err)
	}
	defer s.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat key file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("key file mode = %o, want 600", perm)
	}
}

func TestLoad_RejectsWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.key")
	if err := os.WriteFile(path, []byte("too short"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for undersized key file, got nil")
	}
}

func TestClose_ZeroesKeyAndBlocksSigning(t *testing.T) {
	s, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	s.Close()

	if _, err := s.Sign([]byte("msg")); err != ErrClosed {
		t.Errorf("Sign after Close = %v, want ErrClosed", err)
	}
	for i, b := range s.priv {
		if b != 0 {
			t.Fatalf("private key byte %d not zeroed", i)
		}
	}
}
