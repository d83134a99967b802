package util

import "testing"

func TestNormalize(t *testing.T) {
	// U+00E9 (precomposed) and U+0065 U+0301 (combining) must collapse to
	// the same sequence.
	composed := "café"
	decomposed := "café"
	if Normalize(composed) != Normalize(decomposed) {
		t.Fatalf("normalization mismatch: %q vs %q", Normalize(composed), Normalize(decomposed))
	}
	if Normalize("plain") != "plain" {
		t.Fatal("ascii input must pass through unchanged")
	}
}
