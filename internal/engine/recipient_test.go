package engine

import (
	"strings"
	"testing"
)

func TestIsEmail(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in string
		ok bool
	}{
		{"ann@example.com", true},
		{"a.b+tag@sub.example.org", true},
		{"  ann@example.com  ", true},
		{"", false},
		{"not-an-email", false},
		{"Ann <ann@example.com>", false},
		{"ann@", false},
	}
	for _, tc := range cases {
		if got := IsEmail(tc.in); got != tc.ok {
			t.Errorf("IsEmail(%q) = %v, want %v", tc.in, got, tc.ok)
		}
	}
}

func TestValidEmails(t *testing.T) {
	t.Parallel()

	got := ValidEmails("ann@example.com, bogus;bob@example.com  carol@example.com")
	want := []string{"ann@example.com", "bob@example.com", "carol@example.com"}
	if len(got) != len(want) {
		t.Fatalf("ValidEmails = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ValidEmails[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSelectRecipient(t *testing.T) {
	t.Parallel()

	const admin = "admin@example.com"

	t.Run("column priority order", func(t *testing.T) {
		t.Parallel()
		row := NewRow()
		row.Set("email", "second@example.com")
		row.Set("user_email", "first@example.com")

		addr, note := SelectRecipient(row, "", admin)
		if addr != "first@example.com" {
			t.Fatalf("addr = %q, want user_email to win", addr)
		}
		if !strings.Contains(note, "user_email") {
			t.Fatalf("note = %q, want it to name the column", note)
		}
	})

	t.Run("admin fallback", func(t *testing.T) {
		t.Parallel()
		row := NewRow()
		row.Set("name", "Ann")

		addr, note := SelectRecipient(row, "", admin)
		if addr != admin {
			t.Fatalf("addr = %q, want admin fallback", addr)
		}
		if !strings.Contains(note, "admin") {
			t.Fatalf("note = %q, want fallback explanation", note)
		}
	})

	t.Run("template recipient with placeholder", func(t *testing.T) {
		t.Parallel()
		row := NewRow()
		row.Set("contact_email", "ann@example.com")

		addr, note := SelectRecipient(row, "[contact_email]", admin)
		if addr != "ann@example.com" {
			t.Fatalf("addr = %q, want resolved template recipient", addr)
		}
		if !strings.Contains(note, "template") {
			t.Fatalf("note = %q, want template provenance", note)
		}
	})

	t.Run("template recipient multiple addresses", func(t *testing.T) {
		t.Parallel()
		row := NewRow()
		addr, _ := SelectRecipient(row, "a@example.com, b@example.com", admin)
		if addr != "a@example.com,b@example.com" {
			t.Fatalf("addr = %q, want joined valid addresses", addr)
		}
	})

	t.Run("unresolved template recipient degrades to column", func(t *testing.T) {
		t.Parallel()
		row := NewRow()
		row.Set("email", "ann@example.com")

		addr, note := SelectRecipient(row, "[missing_field]", admin)
		if addr != "ann@example.com" {
			t.Fatalf("addr = %q, want recipient column fallback", addr)
		}
		if !strings.Contains(note, "did not resolve") {
			t.Fatalf("note = %q, want fallback explanation", note)
		}
	})

	t.Run("unresolved template recipient degrades to admin", func(t *testing.T) {
		t.Parallel()
		row := NewRow()
		addr, _ := SelectRecipient(row, "[missing_field]", admin)
		if addr != admin {
			t.Fatalf("addr = %q, want admin fallback", addr)
		}
	})
}
