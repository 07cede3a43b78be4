package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	logx "querybell/pkg/logx"

	"querybell/internal/workload"
)

// Default notification content when a workload leaves fields blank.
const (
	DefaultMessage = "Notification for record {ID}."
	DefaultSubject = "Workload Notification"
)

// Executor loads a workload, gates and executes its query, and dispatches
// one notification per matching row.
//
// Rows are processed strictly sequentially. There is no rollback: a per-row
// dispatch failure is recorded and the loop moves on.
type Executor struct {
	store      *workload.Store
	gate       *Gate
	mailer     Mailer
	templates  TemplateSource // optional; may be nil
	adminEmail string
	log        logx.Logger
}

func NewExecutor(store *workload.Store, gate *Gate, mailer Mailer, templates TemplateSource, adminEmail string, log logx.Logger) *Executor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Executor{
		store:      store,
		gate:       gate,
		mailer:     mailer,
		templates:  templates,
		adminEmail: adminEmail,
		log:        log,
	}
}

// Run executes the workload and returns its report. The report is always
// non-nil and carries the full diagnostic trail even when err is set.
// Persisting the report is the caller's job.
func (e *Executor) Run(ctx context.Context, id string) (*workload.Report, error) {
	r := &workload.Report{WorkloadID: id, Timestamp: time.Now()}

	r.Debugf("stage: fetch workloads")
	all, err := e.store.All(ctx)
	if err != nil {
		r.Error = err.Error()
		return r, err
	}
	ids := make([]string, 0, len(all))
	for k := range all {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	r.Debugf("all workloads: %s", strings.Join(ids, ", "))

	w, ok := all[id]
	if !ok {
		r.Debugf("workload not found: %s", id)
		err := fmt.Errorf("%w: %s", workload.ErrNotFound, id)
		r.Error = err.Error()
		return r, err
	}

	r.Debugf("stage: workload details")
	r.Debugf("name: %s", w.Name)
	r.Debugf("time: %s", w.Time)
	r.Debugf("action: %s", w.Action)
	if w.TemplateRef != "" {
		r.Debugf("template_ref: %s", w.TemplateRef)
	}

	r.Debugf("stage: validate query")
	r.Debugf("query: %s", w.Query)
	if err := Validate(w.Query); err != nil {
		r.Debugf("query rejected: %v", err)
		r.Error = err.Error()
		return r, err
	}

	r.Debugf("stage: execute query")
	preview := ToPreview(w.Query, ScheduledCap)
	rows, err := e.gate.Execute(ctx, preview)
	if err != nil {
		r.Debugf("query error: %v", err)
		r.Error = err.Error()
		return r, err
	}
	r.Rows = len(rows)
	r.Debugf("rows found: %d", len(rows))

	for i, row := range rows {
		r.Debugf("row #%d: %s", i+1, row.Pairs())
		if w.Action != workload.ActionSendEmail {
			r.Debugf("skipped row #%d (unsupported action %q)", i+1, w.Action)
			continue
		}
		if e.dispatchRow(ctx, w, row, r) {
			r.Sent++
		}
	}

	r.Debugf("stage: summary")
	r.Debugf("total emails sent: %d", r.Sent)
	e.log.Info("workload executed",
		logx.String("workload", id),
		logx.Int("rows", r.Rows),
		logx.Int("sent", r.Sent),
	)
	return r, nil
}

// dispatchRow sends one notification for one row and reports success.
// The external template path is tried first when a binding is configured;
// any failure there degrades to the built-in template.
func (e *Executor) dispatchRow(ctx context.Context, w workload.Workload, row *Row, r *workload.Report) bool {
	message := w.Message
	if message == "" {
		message = DefaultMessage
	}
	subject := w.Name
	if subject == "" {
		subject = DefaultSubject
	}

	recipient, note := SelectRecipient(row, "", e.adminEmail)
	r.Debug = append(r.Debug, note)

	if w.TemplateRef != "" && e.templates != nil && e.templates.Exists() {
		if tmpl, ok := e.templates.FindByID(w.TemplateRef); ok {
			if e.sendWithTemplate(ctx, tmpl, row, recipient, subject, message, r) {
				return true
			}
		} else {
			r.Debugf("template not found for ref %q; falling back to built-in", w.TemplateRef)
		}
	}

	body := Render(message, row)
	subj := Render(subject, row)
	if err := e.mailer.Send(ctx, recipient, subj, body, nil); err != nil {
		r.Debugf("failed to send email to %s: %v", recipient, err)
		return false
	}
	r.Debugf("email sent to %s", recipient)
	return true
}

func (e *Executor) sendWithTemplate(ctx context.Context, tmpl MailTemplate, row *Row, recipient, subject, message string, r *workload.Report) bool {
	subj := subject
	if tmpl.Subject != "" {
		subj = tmpl.Subject
	}
	body := message
	if tmpl.Body != "" {
		body = tmpl.Body
	}

	to := recipient
	if tmpl.Recipient != "" {
		var note string
		to, note = SelectRecipient(row, tmpl.Recipient, e.adminEmail)
		r.Debug = append(r.Debug, note)
	}

	var headers map[string]string
	if tmpl.Sender != "" {
		headers = map[string]string{"From": tmpl.Sender}
	}

	if err := e.mailer.Send(ctx, to, Render(subj, row), Render(body, row), headers); err != nil {
		r.Debugf("failed to send email using template to %s: %v", to, err)
		return false
	}
	r.Debugf("email sent using template to %s", to)
	return true
}
