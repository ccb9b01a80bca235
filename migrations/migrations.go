// Package migrations embeds the database schema and the stored functions the
// procedure-backed credential store calls.
package migrations

import "embed"

// FS holds the SQL migration files.
//
//go:embed *.sql
var FS embed.FS
