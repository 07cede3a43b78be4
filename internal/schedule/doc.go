// Package schedule keeps one daily cron trigger per non-paused workload.
//
// The coordinator reconciles the trigger set against the workload store:
// paused or deleted workloads lose their trigger, new ones gain one, and a
// changed HH:MM moves the existing entry. Sweeps are throttled through an
// expiring flag in the option store.
package schedule
