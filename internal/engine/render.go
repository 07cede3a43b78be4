package engine

import (
	"regexp"
	"strings"
)

var (
	// {TAG} — legacy curly placeholders, any case.
	reCurlyTag = regexp.MustCompile(`\{([^}]+)\}`)
	// [tag] / [tag*] — external-form placeholders; the trailing * marks a
	// required field but does not change substitution.
	reBracketTag = regexp.MustCompile(`\[([^\]\s*]+)\*?\]`)
)

// Render fills both placeholder syntaxes from the row. Tokens whose tag does
// not resolve are left verbatim so a bad template stays visible in the
// delivered message instead of silently disappearing.
func Render(template string, row *Row) string {
	if template == "" || row == nil {
		return template
	}
	out := template

	// Fast path for the conventional identifier column.
	if id, ok := rowID(row); ok {
		out = strings.ReplaceAll(out, "{ID}", id)
		out = strings.ReplaceAll(out, "{id}", id)
	}

	out = reBracketTag.ReplaceAllStringFunc(out, func(m string) string {
		tag := reBracketTag.FindStringSubmatch(m)[1]
		if v, ok := ResolveTag(tag, row); ok {
			return v
		}
		return m
	})

	out = reCurlyTag.ReplaceAllStringFunc(out, func(m string) string {
		tag := reCurlyTag.FindStringSubmatch(m)[1]
		if v, ok := ResolveTag(tag, row); ok {
			return v
		}
		return m
	})

	return out
}

func rowID(row *Row) (string, bool) {
	if v, ok := row.Get("ID"); ok {
		return v, true
	}
	if v, ok := row.Get("id"); ok {
		return v, true
	}
	return "", false
}
