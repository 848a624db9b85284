// Package migrations holds the metadata schema. The SQL is kept to the subset
// both PostgreSQL and SQLite accept so one set serves every driver.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
