package migrate

import "embed"

// Files holds the catalog schema migrations and seed data.
//
//go:embed migrations/*.sql seeds/*.sql
var Files embed.FS

// Directories within Files.
const (
	MigrationsDir = "migrations"
	SeedsDir      = "seeds"
)
