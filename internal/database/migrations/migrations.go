// Package migrations embeds the chainjob/chainblock/chainblockfetch
// schema as goose SQL migrations and exposes a single Up entry point.
package migrations

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"

	applerrors "github.com/blockset-corp/chainaudit/internal/errors"
)

//go:embed *.sql
var files embed.FS

// Up applies every pending migration against db, using the standard
// goose_db_version tracking table.
func Up(db *sql.DB) error {
	goose.SetBaseFS(files)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return applerrors.Wrap(err, applerrors.ErrorTypeInternal, "failed to set migration dialect")
	}
	if err := goose.Up(db, "."); err != nil {
		return applerrors.Wrap(err, applerrors.ErrorTypeDatabase, "failed to apply migrations")
	}
	return nil
}

// Status reports the current migration version without applying anything.
func Status(db *sql.DB) error {
	goose.SetBaseFS(files)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return applerrors.Wrap(err, applerrors.ErrorTypeInternal, "failed to set migration dialect")
	}
	return goose.Status(db, ".")
}
