// Package sha256 includes tests for the SHA-256 hasher adapter.
package sha256

import "testing"

// TestHasherHashDeterministic ensures repeated hashing yields the same digest.
func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("# example.com llms.txt\n"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	again, err := h.Hash([]byte("# example.com llms.txt\n"))
	if err != nil {
		t.Fatalf("Hash() repeat error = %v", err)
	}
	if again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
	other, err := h.Hash([]byte("different"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if other == got {
		t.Fatal("expected distinct digests for distinct inputs")
	}
}
