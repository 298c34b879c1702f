// Package migrations embeds the Postgres schema for the documents backend.
package migrations

import "embed"

// FS holds the SQL migration files.
//
//go:embed *.sql
var FS embed.FS
