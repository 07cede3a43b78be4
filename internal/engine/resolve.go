package engine

import (
	"regexp"
	"strings"
)

var reNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize canonicalizes a tag or column name: lowercase, runs of
// non-alphanumerics collapsed to a single underscore, outer underscores
// trimmed. Idempotent.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = reNonAlnum.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// ResolveTag maps a template tag to a row value, trying three tiers in order:
//
//  1. exact: a column's normalized name equals the normalized tag
//  2. prefix-stripped: drop a leading "your_"/"your" from the tag and retry
//     (external form fields are commonly named your_name, your_email, ...)
//  3. suffix: a column's normalized name ends with "_<tag>" or equals <tag>
//     (tag "name" matches column "user_name")
//
// The first tier to produce a match wins; callers leave the token verbatim
// when none does.
func ResolveTag(tag string, row *Row) (string, bool) {
	t := Normalize(tag)
	if t == "" || row == nil {
		return "", false
	}

	if v, ok := exactMatch(t, row); ok {
		return v, true
	}

	stripped := strings.TrimPrefix(t, "your_")
	if stripped == t {
		stripped = strings.TrimPrefix(t, "your")
	}
	if stripped != t && stripped != "" {
		if v, ok := exactMatch(stripped, row); ok {
			return v, true
		}
	}

	for _, col := range row.Columns() {
		nc := Normalize(col)
		if strings.HasSuffix(nc, "_"+t) || nc == t {
			v, _ := row.Get(col)
			return v, true
		}
	}
	return "", false
}

func exactMatch(normTag string, row *Row) (string, bool) {
	for _, col := range row.Columns() {
		if Normalize(col) == normTag {
			v, _ := row.Get(col)
			return v, true
		}
	}
	return "", false
}
