package store

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// migrations embeds the SQL migration set, following the teacher's
// web/embed.go pattern of shipping static assets inside the binary
// instead of as loose files on disk.
//
//go:embed migrations/*.sql
var migrations embed.FS

// Migrate brings db up to the latest embedded migration.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("store: running migrations: %w", err)
	}
	return nil
}
