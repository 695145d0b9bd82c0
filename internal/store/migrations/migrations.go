// Package migrations embeds the goose SQL migrations creating the two-table
// (main/master) layout plus relation-link tables for every entity type.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
