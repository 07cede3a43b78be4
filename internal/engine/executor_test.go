package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"querybell/internal/storage"
	"querybell/internal/workload"
	logx "querybell/pkg/logx"
)

type sentMail struct {
	to, subject, body string
	headers           map[string]string
}

// fakeMailer records sends and fails for any address in failFor.
type fakeMailer struct {
	sent    []sentMail
	failFor map[string]bool
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string, headers map[string]string) error {
	if f.failFor[to] {
		return fmt.Errorf("smtp refused %s", to)
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body, headers: headers})
	return nil
}

type fakeTemplates struct {
	templates map[string]MailTemplate
}

func (f *fakeTemplates) Exists() bool { return len(f.templates) > 0 }
func (f *fakeTemplates) FindByID(id string) (MailTemplate, bool) {
	t, ok := f.templates[id]
	return t, ok
}

// testHarness builds an executor over real sqlite stores seeded with one
// users table.
func testHarness(t *testing.T, mailer Mailer, templates TemplateSource) (*Executor, *workload.Store) {
	t.Helper()
	ctx := context.Background()

	kv, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "kv.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open kv store: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	dataDB, err := storage.OpenDB(filepath.Join(t.TempDir(), "data.db"), 0)
	if err != nil {
		t.Fatalf("open data db: %v", err)
	}
	t.Cleanup(func() { dataDB.Close() })

	if _, err := dataDB.ExecContext(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, email TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := dataDB.ExecContext(ctx, `
		INSERT INTO users (id, name, email) VALUES
			(1, 'Ann',   'ann@example.com'),
			(2, 'Bob',   'bob@example.com'),
			(3, 'Carol', 'carol@example.com')`,
	); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store := workload.NewStore(kv)
	exec := NewExecutor(store, NewGate(dataDB), mailer, templates, "admin@example.com", logx.Nop())
	return exec, store
}

func TestRunHappyPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fm := &fakeMailer{}
	exec, store := testHarness(t, fm, nil)

	w, err := store.Create(ctx, workload.Workload{
		Name:    "Daily Users",
		Time:    "08:00",
		Query:   "SELECT id, name, email FROM users ORDER BY id",
		Action:  workload.ActionSendEmail,
		Message: "Hello {NAME}",
	})
	if err != nil {
		t.Fatalf("create workload: %v", err)
	}

	r, err := exec.Run(ctx, w.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.Rows != 3 || r.Sent != 3 {
		t.Fatalf("report rows/sent = %d/%d, want 3/3", r.Rows, r.Sent)
	}
	if len(fm.sent) != 3 {
		t.Fatalf("mailer saw %d sends, want 3", len(fm.sent))
	}
	if fm.sent[0].to != "ann@example.com" || fm.sent[0].body != "Hello Ann" {
		t.Fatalf("first send = %+v, want Hello Ann to ann@example.com", fm.sent[0])
	}
	if fm.sent[0].subject != "Daily Users" {
		t.Fatalf("subject = %q, want workload name", fm.sent[0].subject)
	}

	// The report keeps the staged trail.
	joined := strings.Join(r.Debug, "\n")
	for _, stage := range []string{"stage: fetch workloads", "stage: validate query", "stage: execute query", "rows found: 3", "total emails sent: 3"} {
		if !strings.Contains(joined, stage) {
			t.Errorf("debug trail missing %q", stage)
		}
	}
}

// A failing row is recorded and skipped; the rest of the batch still goes out.
func TestRunRowFailureIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fm := &fakeMailer{failFor: map[string]bool{"bob@example.com": true}}
	exec, store := testHarness(t, fm, nil)

	w, err := store.Create(ctx, workload.Workload{
		Name:   "Daily Users",
		Time:   "08:00",
		Query:  "SELECT id, name, email FROM users ORDER BY id",
		Action: workload.ActionSendEmail,
	})
	if err != nil {
		t.Fatalf("create workload: %v", err)
	}

	r, err := exec.Run(ctx, w.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.Rows != 3 {
		t.Fatalf("rows = %d, want 3", r.Rows)
	}
	if r.Sent != 2 {
		t.Fatalf("sent = %d, want 2 (middle row fails)", r.Sent)
	}
	if r.Error != "" {
		t.Fatalf("per-row failure must not set the terminal error, got %q", r.Error)
	}
	joined := strings.Join(r.Debug, "\n")
	if !strings.Contains(joined, "failed to send email to bob@example.com") {
		t.Fatalf("debug trail missing row failure, got:\n%s", joined)
	}
}

func TestRunNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	exec, _ := testHarness(t, &fakeMailer{}, nil)

	r, err := exec.Run(ctx, "no-such-id")
	if !errors.Is(err, workload.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if r == nil || r.Error == "" {
		t.Fatalf("report must be non-nil and carry the error, got %+v", r)
	}
}

func TestRunInvalidQueryAborts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fm := &fakeMailer{}
	exec, store := testHarness(t, fm, nil)

	// The store checks shape, not SQL; the executor re-validates before running.
	w, err := store.Create(ctx, workload.Workload{
		Name:   "Sneaky",
		Time:   "08:00",
		Query:  "DELETE FROM users",
		Action: workload.ActionSendEmail,
	})
	if err != nil {
		t.Fatalf("create workload: %v", err)
	}

	r, err := exec.Run(ctx, w.ID)
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("err = %v, want ErrInvalidQuery", err)
	}
	if r.Sent != 0 || len(fm.sent) != 0 {
		t.Fatalf("nothing may be sent on an aborted run, sent=%d", r.Sent)
	}
}

func TestRunQueryErrorAborts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	exec, store := testHarness(t, &fakeMailer{}, nil)

	w, err := store.Create(ctx, workload.Workload{
		Name:   "Broken",
		Time:   "08:00",
		Query:  "SELECT * FROM table_that_is_not_there",
		Action: workload.ActionSendEmail,
	})
	if err != nil {
		t.Fatalf("create workload: %v", err)
	}

	r, err := exec.Run(ctx, w.ID)
	if !errors.Is(err, ErrQueryFailed) {
		t.Fatalf("err = %v, want ErrQueryFailed", err)
	}
	if r.Error == "" {
		t.Fatalf("report must carry the query error")
	}
}

func TestRunWithExternalTemplate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fm := &fakeMailer{}
	templates := &fakeTemplates{templates: map[string]MailTemplate{
		"welcome": {
			Recipient: "[email]",
			Subject:   "Welcome {NAME}",
			Body:      "Dear [name], your id is {ID}.",
			Sender:    "noreply@example.com",
		},
	}}
	exec, store := testHarness(t, fm, templates)

	w, err := store.Create(ctx, workload.Workload{
		Name:        "Welcomes",
		Time:        "08:00",
		Query:       "SELECT id, name, email FROM users WHERE id = 1",
		Action:      workload.ActionSendEmail,
		TemplateRef: "welcome",
	})
	if err != nil {
		t.Fatalf("create workload: %v", err)
	}

	r, err := exec.Run(ctx, w.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.Sent != 1 || len(fm.sent) != 1 {
		t.Fatalf("sent = %d, want 1", r.Sent)
	}
	got := fm.sent[0]
	if got.to != "ann@example.com" {
		t.Fatalf("to = %q, want template-resolved address", got.to)
	}
	if got.subject != "Welcome Ann" {
		t.Fatalf("subject = %q, want rendered template subject", got.subject)
	}
	if got.body != "Dear Ann, your id is 1." {
		t.Fatalf("body = %q, want rendered template body", got.body)
	}
	if got.headers["From"] != "noreply@example.com" {
		t.Fatalf("From header = %q, want template sender", got.headers["From"])
	}
}

// A dangling template ref degrades to the built-in template instead of failing.
func TestRunMissingTemplateRefFallsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fm := &fakeMailer{}
	templates := &fakeTemplates{templates: map[string]MailTemplate{"other": {}}}
	exec, store := testHarness(t, fm, templates)

	w, err := store.Create(ctx, workload.Workload{
		Name:        "Dangling",
		Time:        "08:00",
		Query:       "SELECT id, name, email FROM users WHERE id = 1",
		Action:      workload.ActionSendEmail,
		Message:     "Hi {NAME}",
		TemplateRef: "nope",
	})
	if err != nil {
		t.Fatalf("create workload: %v", err)
	}

	r, err := exec.Run(ctx, w.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.Sent != 1 {
		t.Fatalf("sent = %d, want 1 via built-in fallback", r.Sent)
	}
	if fm.sent[0].body != "Hi Ann" {
		t.Fatalf("body = %q, want built-in render", fm.sent[0].body)
	}
}

func TestRunDefaultMessage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fm := &fakeMailer{}
	exec, store := testHarness(t, fm, nil)

	w, err := store.Create(ctx, workload.Workload{
		Name:   "Defaults",
		Time:   "08:00",
		Query:  "SELECT id, email FROM users WHERE id = 2",
		Action: workload.ActionSendEmail,
	})
	if err != nil {
		t.Fatalf("create workload: %v", err)
	}

	if _, err := exec.Run(ctx, w.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fm.sent) != 1 || fm.sent[0].body != "Notification for record 2." {
		t.Fatalf("sent = %+v, want default message with id filled in", fm.sent)
	}
}

// Rows under an unknown action are skipped, not dispatched and not failed.
func TestRunUnsupportedAction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fm := &fakeMailer{}
	exec, store := testHarness(t, fm, nil)

	w, err := store.Create(ctx, workload.Workload{
		Name:   "Future",
		Time:   "08:00",
		Query:  "SELECT id FROM users",
		Action: "send_sms",
	})
	if err != nil {
		t.Fatalf("create workload: %v", err)
	}

	r, err := exec.Run(ctx, w.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.Rows != 3 || r.Sent != 0 || len(fm.sent) != 0 {
		t.Fatalf("rows/sent = %d/%d, want 3/0 with no dispatches", r.Rows, r.Sent)
	}
}
