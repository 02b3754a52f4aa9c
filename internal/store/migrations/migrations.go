// Package migrations embeds the mirror database schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
