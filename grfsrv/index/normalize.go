package index

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize derives the canonical lookup key for a path: every run of
// forward or back slashes collapses to a single "/", ASCII letters are
// lowercased, and the result is Unicode NFC. Two raw paths are the same
// file exactly when their normalized forms are equal.
func Normalize(p string) string {
	var b strings.Builder
	b.Grow(len(p))
	slash := false
	for _, r := range p {
		if r == '/' || r == '\\' {
			if !slash {
				b.WriteByte('/')
			}
			slash = true
			continue
		}
		slash = false
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}

// BackslashKey is the ad-hoc Windows-style alias: ASCII lowercase with
// forward slashes flipped to backslashes, no run collapsing. Legacy clients
// request paths in exactly this shape.
func BackslashKey(p string) string {
	lowered := asciiLower(p)
	return strings.ReplaceAll(lowered, "/", "\\")
}

func asciiLower(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
