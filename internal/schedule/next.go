package schedule

import (
	"fmt"
	"time"

	"querybell/internal/workload"
)

// NextOccurrence computes the next instant the HH:MM trigger fires: today at
// that wall-clock time if it is still strictly in the future, else tomorrow.
func NextOccurrence(now time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	hour, minute, err := workload.ParseTime(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = now.Location()
	}
	now = now.In(loc)
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, nil
}

// cronSpec translates an HH:MM trigger time into a daily cron expression.
func cronSpec(hhmm string) (string, error) {
	hour, minute, err := workload.ParseTime(hhmm)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
