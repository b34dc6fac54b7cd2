// Package migrations embeds the goose SQL migrations for the client's local
// SQLite stores.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
