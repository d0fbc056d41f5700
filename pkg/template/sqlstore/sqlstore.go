// Package sqlstore persists templates through database/sql. The queries are
// portable between PostgreSQL and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"templateflow/pkg/template"
)

// Schema creates the templates table when missing.
const Schema = `CREATE TABLE IF NOT EXISTS templates (
	id INTEGER PRIMARY KEY,
	subject TEXT NOT NULL,
	body TEXT NOT NULL
)`

const upsert = `INSERT INTO templates (id, subject, body) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET subject = excluded.subject, body = excluded.body`

// Repository persists templates in a SQL database.
type Repository struct {
	db *sql.DB
}

// New creates a SQL repository. The caller must ensure the templates table
// exists, see Migrate.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create templates table: %w", err)
	}
	return nil
}

// Create inserts the template, overwriting any existing row with the same id.
func (r *Repository) Create(ctx context.Context, id int, t template.Template) error {
	if _, err := r.db.ExecContext(ctx, upsert, id, t.Subject, t.Body); err != nil {
		return fmt.Errorf("%w: %w", template.ErrWrite, err)
	}
	return nil
}

// Read retrieves a template by id.
func (r *Repository) Read(ctx context.Context, id int) (template.Template, bool, error) {
	var t template.Template
	err := r.db.QueryRowContext(ctx, "SELECT id, subject, body FROM templates WHERE id = $1", id).Scan(&t.ID, &t.Subject, &t.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return template.Template{}, false, nil
	}
	if err != nil {
		return template.Template{}, false, fmt.Errorf("%w: %w", template.ErrRead, err)
	}
	return t, true, nil
}

// Update replaces the template under id, inserting it when absent.
func (r *Repository) Update(ctx context.Context, id int, t template.Template) error {
	return r.Create(ctx, id, t)
}

// Delete removes a template by id.
func (r *Repository) Delete(ctx context.Context, id int) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM templates WHERE id = $1", id); err != nil {
		return fmt.Errorf("%w: %w", template.ErrWrite, err)
	}
	return nil
}

// Count returns the number of rows in the templates table.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM templates").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %w", template.ErrRead, err)
	}
	return n, nil
}

// Select fetches all templates and keeps those matching pred.
func (r *Repository) Select(ctx context.Context, pred template.Predicate) ([]template.Template, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, subject, body FROM templates")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", template.ErrRead, err)
	}
	defer rows.Close()
	templates := []template.Template{}
	for rows.Next() {
		var t template.Template
		if err := rows.Scan(&t.ID, &t.Subject, &t.Body); err != nil {
			return nil, fmt.Errorf("%w: %w", template.ErrRead, err)
		}
		if pred(t) {
			templates = append(templates, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", template.ErrRead, err)
	}
	return templates, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}
