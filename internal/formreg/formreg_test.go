package formreg

import (
	"os"
	"path/filepath"
	"testing"

	logx "querybell/pkg/logx"
)

const sampleRegistry = `
welcome:
  recipient: "[your-email]"
  subject: "Welcome {NAME}"
  body: "Dear [your-name], thanks for signing up."
  sender: "noreply@example.com"
reminder:
  subject: "Reminder"
  body: "Record {ID} needs attention."
`

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	r, err := Load(writeRegistry(t, sampleRegistry), logx.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !r.Exists() {
		t.Fatal("Exists() = false on populated registry")
	}

	tmpl, ok := r.FindByID("welcome")
	if !ok {
		t.Fatal("FindByID(welcome) not found")
	}
	if tmpl.Recipient != "[your-email]" || tmpl.Sender != "noreply@example.com" {
		t.Fatalf("welcome = %+v", tmpl)
	}

	if tmpl, ok := r.FindByID("reminder"); !ok || tmpl.Sender != "" {
		t.Fatalf("reminder = (%+v, %v), want entry with empty sender", tmpl, ok)
	}
	if _, ok := r.FindByID("missing"); ok {
		t.Fatal("FindByID(missing) = found")
	}
}

// No configured path means the capability is simply absent, not an error.
func TestLoadEmptyPath(t *testing.T) {
	t.Parallel()

	r, err := Load("", logx.Nop())
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if r.Exists() {
		t.Fatal("Exists() = true with no path")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	r, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), logx.Nop())
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if r.Exists() {
		t.Fatal("Exists() = true for missing file")
	}
}

func TestLoadBadYAML(t *testing.T) {
	t.Parallel()

	if _, err := Load(writeRegistry(t, "welcome: [unclosed"), logx.Nop()); err == nil {
		t.Fatal("Load on malformed yaml = nil error")
	}
}

func TestReload(t *testing.T) {
	t.Parallel()

	path := writeRegistry(t, sampleRegistry)
	r, err := Load(path, logx.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := os.WriteFile(path, []byte("only:\n  subject: s\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, ok := r.FindByID("welcome"); ok {
		t.Fatal("stale entry survived reload")
	}
	if _, ok := r.FindByID("only"); !ok {
		t.Fatal("new entry missing after reload")
	}
}
