// Package migrations embeds the schema for each supported database driver.
package migrations

import "embed"

// FS holds the migration files, one directory per driver
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

// Directory names inside FS
const (
	SQLiteDir   = "sqlite"
	PostgresDir = "postgres"
)
