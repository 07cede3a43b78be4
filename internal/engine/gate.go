package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidQuery means the statement failed the SELECT-only gate.
	ErrInvalidQuery = errors.New("only SELECT queries are allowed")
	// ErrQueryFailed wraps the database engine's own error text.
	ErrQueryFailed = errors.New("query execution failed")
)

// Row caps for bounded execution. Scheduled runs are never unbounded.
const (
	PreviewCap   = 3
	ScheduledCap = 1000
)

var (
	reTrailingSemi = regexp.MustCompile(`;\s*$`)
	reLimit        = regexp.MustCompile(`(?i)\blimit\b\s+\d+`)
)

// Validate accepts a query iff it textually starts with SELECT
// (case-insensitive) and is a single statement.
//
// This is a prefix gate, not a parser: a syntactically broken SELECT still
// passes and fails later at execution. The single-statement check closes the
// stacked-statement hole ("SELECT 1; DROP ...") that a bare prefix test
// leaves open.
func Validate(query string) error {
	q := strings.TrimSpace(query)
	if len(q) < len("select") || !strings.EqualFold(q[:len("select")], "select") {
		return ErrInvalidQuery
	}
	if i := strings.IndexByte(q, ';'); i >= 0 && strings.TrimSpace(q[i+1:]) != "" {
		return fmt.Errorf("%w: compound statements are not accepted", ErrInvalidQuery)
	}
	return nil
}

// ToPreview derives the bounded form of a query: one trailing statement
// terminator is stripped, and a LIMIT is appended unless the query already
// carries one (no double limiting).
func ToPreview(query string, cap int) string {
	q := reTrailingSemi.ReplaceAllString(strings.TrimSpace(query), "")
	if !reLimit.MatchString(q) {
		q += " LIMIT " + strconv.Itoa(cap)
	}
	return q
}

// Gate validates and executes read queries against the data database.
type Gate struct {
	db *sql.DB
}

func NewGate(db *sql.DB) *Gate {
	return &Gate{db: db}
}

// Execute runs the (already gated) query and returns its rows with column
// order preserved. NULLs read as empty strings.
func (g *Gate) Execute(ctx context.Context, query string) ([]*Row, error) {
	rows, err := g.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	var out []*Row
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
		}
		r := NewRow()
		for i, c := range cols {
			r.Set(c, scalarString(vals[i]))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return out, nil
}

func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
