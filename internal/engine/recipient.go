package engine

import (
	"net/mail"
	"regexp"
	"strings"
)

// recipientColumns is the fixed priority order for detecting a notification
// target in a result row.
var recipientColumns = []string{"user_email", "email", "email_address", "contact_email", "to"}

var reAddrSplit = regexp.MustCompile(`[,;\s]+`)

// IsEmail reports whether s is a plausible single email address.
func IsEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "<>") {
		return false
	}
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s
}

// ValidEmails splits a rendered recipient string on separators and keeps the
// syntactically valid addresses, in order.
func ValidEmails(s string) []string {
	var out []string
	for _, c := range reAddrSplit.Split(s, -1) {
		c = strings.TrimSpace(c)
		if IsEmail(c) {
			out = append(out, c)
		}
	}
	return out
}

// rowRecipient scans the conventional recipient columns in priority order and
// returns the first non-empty value with its column name.
func rowRecipient(row *Row) (addr, column string, ok bool) {
	for _, col := range recipientColumns {
		if v, found := row.Get(col); found && v != "" {
			return v, col, true
		}
	}
	return "", "", false
}

// SelectRecipient picks the notification target for one row. The note
// explains which fallback produced the address; it is part of the run's
// auditable output, not incidental logging.
//
// Order: external-template recipient (rendered, validated, joined) →
// conventional row column → administrator fallback.
func SelectRecipient(row *Row, templateRecipient, adminEmail string) (addr, note string) {
	if templateRecipient != "" {
		rendered := Render(templateRecipient, row)
		if valid := ValidEmails(rendered); len(valid) > 0 {
			return strings.Join(valid, ","), "recipient from template: " + strings.Join(valid, ",")
		}
		// Placeholders didn't resolve to anything deliverable; fall through.
		if v, col, ok := rowRecipient(row); ok && IsEmail(v) {
			return v, "template recipient did not resolve; using recipient column " + col
		}
		return adminEmail, "template recipient did not resolve; falling back to admin email: " + adminEmail
	}

	if v, col, ok := rowRecipient(row); ok {
		return v, "recipient from column " + col
	}
	return adminEmail, "no recipient column found; falling back to admin email: " + adminEmail
}
