// Package auth tests cover hashing, verification, and credential derivation.
package auth

import (
	"strings"
	"testing"
)

// TestHashVerifyRoundTrip accepts the right password and rejects the rest.
func TestHashVerifyRoundTrip(t *testing.T) {
	h, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(h, "argon2id$") {
		t.Fatalf("unexpected format: %s", h)
	}

	ok, err := VerifyPassword("s3cret", h)
	if err != nil || !ok {
		t.Fatalf("verify correct: ok=%v err=%v", ok, err)
	}
	ok, err = VerifyPassword("wrong", h)
	if err != nil || ok {
		t.Fatalf("verify wrong: ok=%v err=%v", ok, err)
	}
	ok, _ = VerifyPassword("", h)
	if ok {
		t.Fatalf("empty password must not verify")
	}
}

// TestHashPasswordSalted: two hashes of the same password differ.
func TestHashPasswordSalted(t *testing.T) {
	a, _ := HashPassword("same")
	b, _ := HashPassword("same")
	if a == b {
		t.Fatalf("hashes should be salted")
	}
}

// TestVerifyPasswordBadFormat rejects mangled hashes with an error.
func TestVerifyPasswordBadFormat(t *testing.T) {
	if _, err := VerifyPassword("x", "not-a-phc-string"); err == nil {
		t.Fatalf("expected format error")
	}
	if _, err := VerifyPassword("x", "md5$v=19$m=1,t=1,p=1$aa$bb"); err == nil {
		t.Fatalf("expected unsupported algorithm error")
	}
}

// TestCredentialDeterministic: same inputs, same token; any change rotates.
func TestCredentialDeterministic(t *testing.T) {
	a := Credential("alice", "pw")
	if a != Credential("alice", "pw") {
		t.Fatalf("credential must be deterministic")
	}
	if a == Credential("alice", "pw2") || a == Credential("bob", "pw") {
		t.Fatalf("credential must depend on both username and password")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
}
