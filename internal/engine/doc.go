// Package engine executes workloads: it gates the query, runs it, and for
// each returned row resolves a recipient and message through the placeholder
// pipeline before dispatching mail.
//
// The executor never parses SQL; the gate accepts SELECT statements only and
// bounds every execution with a row cap.
package engine
