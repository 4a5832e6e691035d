package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/pressly/goose/v3"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// Up applies all pending migrations for the dialect (goose.DialectSQLite3 or goose.DialectPostgres)
func Up(ctx context.Context, db *sql.DB, dialect goose.Dialect) error {
	dir, err := dirFor(dialect)
	if err != nil {
		return err
	}
	fsys, err := fs.Sub(files, dir)
	if err != nil {
		return fmt.Errorf("can't open migrations: %w", err)
	}
	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("can't init goose: %w", err)
	}
	res, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("can't migrate: %w", err)
	}
	for _, r := range res {
		goapp.Log.Info().Str("dialect", string(dialect)).Str("migration", r.Source.Path).Dur("took", r.Duration).Msg("applied")
	}
	return nil
}

func dirFor(dialect goose.Dialect) (string, error) {
	switch dialect {
	case goose.DialectSQLite3:
		return "sqlite", nil
	case goose.DialectPostgres:
		return "postgres", nil
	}
	return "", fmt.Errorf("unsupported dialect %s", dialect)
}
