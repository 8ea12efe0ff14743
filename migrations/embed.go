// Package migrations embeds the SQL schema files applied by cmd/migrate.
package migrations

import "embed"

// Files holds every *.sql migration, applied in lexical order.
//
//go:embed *.sql
var Files embed.FS
