package engine

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"Name", "name"},
		{"USER EMAIL", "user_email"},
		{"your-name", "your_name"},
		{"  Contact  Email  ", "contact_email"},
		{"__already__", "already"},
		{"a--b..c", "a_b_c"},
		{"", ""},
		{"***", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	// Idempotent: normalizing a normalized name is a no-op.
	for _, tc := range cases {
		once := Normalize(tc.in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q -> %q", tc.in, once, twice)
		}
	}
}

func TestResolveTag(t *testing.T) {
	t.Parallel()

	row := NewRow()
	row.Set("User Name", "Ann")
	row.Set("your_email", "ann@example.com")
	row.Set("order_total", "42")

	cases := []struct {
		name string
		tag  string
		want string
		ok   bool
	}{
		{"exact after normalization", "user name", "Ann", true},
		{"exact different punctuation", "User-Name", "Ann", true},
		{"prefix-stripped your_", "your_email", "ann@example.com", true},
		{"suffix match", "total", "42", true},
		{"suffix match on name", "name", "Ann", true},
		{"no match", "phone", "", false},
		{"empty tag", "", "", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ResolveTag(tc.tag, row)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("ResolveTag(%q) = (%q, %v), want (%q, %v)", tc.tag, got, ok, tc.want, tc.ok)
			}
		})
	}
}

// Exact matches always beat prefix-stripped and suffix matches.
func TestResolveTagTierOrder(t *testing.T) {
	t.Parallel()

	row := NewRow()
	row.Set("your_name", "form value")
	row.Set("name", "column value")

	// Tag "your_name" hits tier 1 on the your_name column, not the stripped "name".
	if v, ok := ResolveTag("your_name", row); !ok || v != "form value" {
		t.Fatalf("ResolveTag(your_name) = (%q, %v), want form value via exact tier", v, ok)
	}
	// Tag "name" hits its own exact column.
	if v, ok := ResolveTag("name", row); !ok || v != "column value" {
		t.Fatalf("ResolveTag(name) = (%q, %v), want column value", v, ok)
	}

	// With only a prefixed column present, the stripped tier kicks in.
	prefixed := NewRow()
	prefixed.Set("name", "Ann")
	if v, ok := ResolveTag("your_name", prefixed); !ok || v != "Ann" {
		t.Fatalf("ResolveTag(your_name) on stripped tier = (%q, %v), want Ann", v, ok)
	}
}
