package migrations

import "embed"

// Files exposes embedded Postgres migrations ordered lexicographically.
//
//go:embed *.sql
var Files embed.FS

// SQLiteFiles exposes the SQLite flavour of the schema under the sqlite/ prefix.
//
//go:embed sqlite/*.sql
var SQLiteFiles embed.FS
