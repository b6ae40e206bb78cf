// Package domain defines the core persistence models for the application.
// This file implements content-addressed deduplication for inbound group
// messages: two messages with the same sender whose texts differ only in
// case, whitespace, or punctuation hash to the same digest, so the second
// insert is rejected by the (user_id, content_hash) unique index.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var foldCaser = cases.Fold()

// NormalizeContent canonicalizes message text for hashing: NFKC unicode
// normalization, case folding, punctuation removal, and whitespace collapse.
func NormalizeContent(text string) string {
	s := norm.NFKC.String(text)
	s = foldCaser.String(s)

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
		// everything else (punctuation, symbols) is dropped
	}
	return b.String()
}

// ContentHash returns the hex SHA-256 digest over normalized text plus the
// sender identity. It is deterministic and safe to compute on the hot
// message path.
func ContentHash(sender, text string) string {
	h := sha256.New()
	h.Write([]byte(NormalizeContent(text)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(sender)))
	return hex.EncodeToString(h.Sum(nil))
}
