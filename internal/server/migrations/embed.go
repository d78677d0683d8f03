// Package migrations embeds the authority's goose migrations.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
