// Package migrations holds the Postgres schema as golang-migrate files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
