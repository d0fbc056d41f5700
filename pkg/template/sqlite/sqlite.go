// Package sqlite opens a SQLite backed template repository.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"templateflow/pkg/template/sqlstore"
)

// Open opens the database file at path (":memory:" for a throwaway
// database) and creates the templates table.
func Open(ctx context.Context, path string) (*sqlstore.Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite serialises writers anyway, and an in-memory database only
	// exists on the connection that created it.
	db.SetMaxOpenConns(1)

	if err := sqlstore.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return sqlstore.New(db), nil
}
