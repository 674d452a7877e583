package textutil

import "strings"

// luceneSpecial is the 19-character set escaped with a backslash when
// building full-text queries against the graph store.
const luceneSpecial = `+-&|!(){}[]^"~*?:\/`

// SanitizeLucene prepends a backslash to every Lucene special character in
// s. Empty input returns empty. No other characters are touched.
func SanitizeLucene(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for _, r := range s {
		if strings.ContainsRune(luceneSpecial, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
