package spreadsheet

import (
	"strings"
	"unicode"
)

// NormalizeName reduces a herb name to a lookup key: lowercased, with any
// parenthetical suffix removed and all non-alphanumeric characters dropped.
// The operation is idempotent, normalizing an already-normalized name
// returns the same string.
func NormalizeName(name string) string {
	name = strings.ToLower(StripParenthetical(name))

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripParenthetical removes a trailing "(...)" qualifier from a name,
// e.g. "Tulsi (Holy Basil)" becomes "Tulsi".
func StripParenthetical(name string) string {
	if open := strings.Index(name, "("); open >= 0 {
		name = name[:open]
	}
	return strings.TrimSpace(name)
}

// FirstWord returns the first whitespace-delimited token of a name.
func FirstWord(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// splitAliases splits a raw name cell into its individual aliases. A single
// cell may carry several delimited names for the same row.
func splitAliases(cell string) []string {
	aliases := strings.FieldsFunc(cell, func(r rune) bool {
		return r == ';' || r == ',' || r == '|' || r == '\n'
	})
	out := aliases[:0]
	for _, alias := range aliases {
		if alias = strings.TrimSpace(alias); alias != "" {
			out = append(out, alias)
		}
	}
	return out
}
