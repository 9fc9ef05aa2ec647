package simhash

import (
	"testing"

	"pgregory.net/rapid"
)

func TestSum_EmptyInput(t *testing.T) {
	h := Sum(nil)
	if h == "" {
		t.Fatal("Sum(nil) returned empty string")
	}
	if !Verify(nil, h) {
		t.Fatalf("Verify(nil, %q) = false, want true", h)
	}
}

func TestSum_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
		a := Sum(data)
		b := Sum(data)
		if a != b {
			t.Fatalf("Sum not deterministic: %q != %q", a, b)
		}
		if !Verify(data, a) {
			t.Fatalf("Verify failed for its own Sum output")
		}
	})
}

func TestVerify_MismatchRejected(t *testing.T) {
	a := Sum([]byte("alpha"))
	if Verify([]byte("bravo"), a) {
		t.Fatal("Verify accepted mismatched content")
	}
}
