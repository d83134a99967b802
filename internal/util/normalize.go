// Package util holds small helpers shared across packages.
package util

import "golang.org/x/text/unicode/norm"

// Normalize applies NFKD normalization so that visually identical
// credential input authenticates identically regardless of how the
// platform composed it.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}
