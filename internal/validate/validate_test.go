package validate

import "testing"

// TestUsername covers accepted and rejected account names.
func TestUsername(t *testing.T) {
	good := []string{"alice", "Bob1", "a", "user_name-2"}
	for _, s := range good {
		if err := Username(s); err != nil {
			t.Fatalf("Username(%q): %v", s, err)
		}
	}
	bad := []string{"", "-starts-with-dash", "_x", "has space", "a/b", "a.b", "über", string(make([]byte, 80))}
	for _, s := range bad {
		if err := Username(s); err == nil {
			t.Fatalf("Username(%q): expected error", s)
		}
	}
}
