// Package schema embeds the TimescaleDB migrations.
package schema

import "embed"

// FS holds the NNNNNN_name.{up,down}.sql migration files.
//
//go:embed *.sql
var FS embed.FS
