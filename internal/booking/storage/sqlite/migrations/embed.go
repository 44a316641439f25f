// Package migrations contains embedded SQL migrations for the SQLite store.
package migrations

import "embed"

//go:embed booking/*.sql
var BookingFS embed.FS
