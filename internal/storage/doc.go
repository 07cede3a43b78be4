// Package storage provides the sqlite persistence layer.
//
// It holds:
//   - Options (workload definitions, last-run report) as JSON values
//   - Expiring flags (scheduling sweep throttle)
//
// The data database workload queries run against may be the same file or a
// separate one; OpenDB hands out a plain *sql.DB either way.
package storage
