package auth

import (
	"embed"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS exposes the embedded per-dialect schema migrations so hosts
// can apply them with their own migration runner.
func GetMigrationsFS() embed.FS {
	return migrationsFS
}
