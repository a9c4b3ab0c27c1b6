package sca

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the audit schema for postgres and, under sqlite/, its
// sqlite rendition.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the embedded migration tree.
func GetMigrationsFS() fs.FS {
	return migrationsFS
}
