// Package textutil holds the small pure-text helpers shared across the
// engine: entity name normalization, Lucene query escaping, UUID v7
// generation and ISO-8601 timestamp handling.
package textutil

import "strings"

// NormalizeEntityName title-cases an entity name while preserving brand
// case (iPhone, TypeScript, Neo4j) and acronyms (AWS, GPT4). Tokenization
// splits on spaces, preserving consecutive separators; hyphenated tokens
// are normalized sub-token by sub-token and rejoined with "-". The
// function is idempotent: NormalizeEntityName(NormalizeEntityName(s)) ==
// NormalizeEntityName(s).
func NormalizeEntityName(s string) string {
	tokens := splitPreservingSeparators(s, ' ')
	for i, tok := range tokens {
		if tok == " " {
			continue
		}
		tokens[i] = normalizeHyphenated(tok)
	}
	return strings.Join(tokens, "")
}

func normalizeHyphenated(tok string) string {
	parts := splitPreservingSeparators(tok, '-')
	for i, p := range parts {
		if p == "-" {
			continue
		}
		parts[i] = normalizeToken(p)
	}
	return strings.Join(parts, "")
}

// splitPreservingSeparators splits s on sep, keeping each separator
// occurrence as its own single-character element so the original spacing
// can be reconstructed by a plain Join.
func splitPreservingSeparators(s string, sep rune) []string {
	if s == "" {
		return nil
	}
	var out []string
	var cur strings.Builder
	for _, r := range s {
		if r == sep {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			out = append(out, string(sep))
			continue
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func normalizeToken(tok string) string {
	if tok == "" {
		return tok
	}
	if isBrandCase(tok) {
		return tok
	}
	if isAcronym(tok) {
		return tok
	}
	return titleCaseFirstLetter(tok)
}

// isBrandCase reports whether tok mixes a lowercase letter with a
// non-lowercase letter anywhere, e.g. "iPhone", "TypeScript", "Neo4j".
func isBrandCase(tok string) bool {
	hasLower, hasOther := false, false
	for _, r := range tok {
		switch {
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasOther = true
		}
	}
	return hasLower && hasOther
}

// isAcronym reports whether tok is all-uppercase letters with optional
// digits and length >= 2, e.g. "AWS", "GPT4".
func isAcronym(tok string) bool {
	runes := []rune(tok)
	if len(runes) < 2 {
		return false
	}
	hasUpper := false
	for _, r := range runes {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
			// digits allowed
		default:
			return false
		}
	}
	return hasUpper
}

func titleCaseFirstLetter(tok string) string {
	runes := []rune(tok)
	for i, r := range runes {
		if r >= 'a' && r <= 'z' {
			runes[i] = r - ('a' - 'A')
			return string(runes)
		}
		if r >= 'A' && r <= 'Z' {
			return string(runes)
		}
	}
	return tok
}
