// Package token normalizes free text into lowercase alphanumeric tokens
// used for prefix-style catalog search. Index-time and query-time callers
// share the same normalization, otherwise prefix matching silently fails.
package token

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD and removes combining diacritical marks,
// so "Café" and "cafe" normalize identically.
var stripMarks = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Normalize lowercases, trims and strips diacritics from s.
func Normalize(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		// Transform only fails on malformed UTF-8; fall back to the raw input.
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// Tokenize extracts maximal [a-z0-9]+ runs from the normalized text,
// deduplicated preserving first-occurrence order.
func Tokenize(text string) []string {
	normalized := Normalize(text)

	tokens := make([]string, 0, 8)
	seen := make(map[string]bool)

	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		tok := b.String()
		b.Reset()
		if !seen[tok] {
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}

	for _, r := range normalized {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()

	return tokens
}

// TokenizeMany unions the token sets of all texts. Order follows first
// occurrence across inputs but carries no significance for callers.
func TokenizeMany(texts ...string) []string {
	tokens := make([]string, 0, 8)
	seen := make(map[string]bool)
	for _, text := range texts {
		for _, tok := range Tokenize(text) {
			if !seen[tok] {
				seen[tok] = true
				tokens = append(tokens, tok)
			}
		}
	}
	return tokens
}
