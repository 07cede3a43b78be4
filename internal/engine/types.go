package engine

import (
	"context"
	"strings"
)

// Row is an ordered column->value mapping produced by one query execution.
// Column order is preserved as returned by the database.
type Row struct {
	cols []string
	vals map[string]string
}

func NewRow() *Row {
	return &Row{vals: map[string]string{}}
}

// Set appends the column on first write and overwrites on repeat writes.
func (r *Row) Set(col, val string) {
	if r.vals == nil {
		r.vals = map[string]string{}
	}
	if _, ok := r.vals[col]; !ok {
		r.cols = append(r.cols, col)
	}
	r.vals[col] = val
}

func (r *Row) Get(col string) (string, bool) {
	v, ok := r.vals[col]
	return v, ok
}

func (r *Row) Columns() []string { return r.cols }

// Pairs renders the row as "col=val, col2=val2" for diagnostic lines.
func (r *Row) Pairs() string {
	var b strings.Builder
	for i, c := range r.cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c)
		b.WriteString("=")
		b.WriteString(r.vals[c])
	}
	return b.String()
}

// MailTemplate is an externally-defined mail template. Any field may carry
// its own placeholder syntax and any field may be empty.
type MailTemplate struct {
	Recipient string
	Subject   string
	Body      string
	Sender    string
}

// TemplateSource is the optional external template registry. The executor
// must work with it entirely absent (nil, or Exists() == false).
type TemplateSource interface {
	Exists() bool
	FindByID(id string) (MailTemplate, bool)
}

// Mailer is the outbound mail transport.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string, headers map[string]string) error
}
