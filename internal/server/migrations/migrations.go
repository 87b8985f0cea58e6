// Package migrations embeds the goose SQL migrations for the refresh token
// store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
