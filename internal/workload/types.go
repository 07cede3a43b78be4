package workload

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var ErrNotFound = errors.New("workload not found")

// ActionSendEmail is the only action the executor acts on. Rows under any
// other action are skipped, not failed, so new actions can be introduced
// without breaking older definitions.
const ActionSendEmail = "send_email"

// Workload is a persisted definition of a scheduled query plus a
// notification action.
type Workload struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Time is the daily trigger wall-clock time, "HH:MM" (24h).
	Time string `json:"time"`

	// Query must be a read-only SELECT; validated at submission and again
	// before every run.
	Query string `json:"query"`

	Action  string `json:"action"`
	Message string `json:"message,omitempty"`

	// TemplateRef optionally binds the notification to an entry in the
	// external template registry. Empty means built-in template only.
	TemplateRef string `json:"template_ref,omitempty"`

	// Paused workloads keep their definition (including Time) but have no
	// pending trigger.
	Paused bool `json:"paused,omitempty"`
}

// Report captures one execution. Only the most recent report is retained
// system-wide; the caller of Executor.Run persists it.
type Report struct {
	WorkloadID string    `json:"workload_id"`
	Timestamp  time.Time `json:"timestamp"`
	Rows       int       `json:"rows"`
	Sent       int       `json:"sent"`

	// Error is the terminal error of the run, if any. Per-row dispatch
	// failures are not terminal and only show up in Debug.
	Error string `json:"error,omitempty"`

	// Debug is the ordered diagnostic trail of the run. It is the primary
	// observability surface and is populated on success too.
	Debug []string `json:"debug"`
}

func (r *Report) Debugf(format string, args ...any) {
	r.Debug = append(r.Debug, fmt.Sprintf(format, args...))
}

var reTime = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseTime validates an "HH:MM" trigger time and returns its components.
func ParseTime(hhmm string) (hour, minute int, err error) {
	m := reTime.FindStringSubmatch(hhmm)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", hhmm)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", hhmm)
	}
	if minute > 59 {
		return 0, 0, fmt.Errorf("invalid minutes in %q", hhmm)
	}
	return hour, minute, nil
}

// Validate checks the fields a definition must have before it is persisted.
func (w Workload) Validate() error {
	if w.Name == "" {
		return errors.New("name required")
	}
	if _, _, err := ParseTime(w.Time); err != nil {
		return err
	}
	if w.Query == "" {
		return errors.New("query required")
	}
	return nil
}
