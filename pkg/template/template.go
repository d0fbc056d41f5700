// Package template defines the template record and the storage contract
// shared by every backing store.
package template

import (
	"context"
	"errors"

	"github.com/sahilm/fuzzy"
)

// Template is a stored message template. ID is assigned by the service on
// creation and never changes afterwards.
type Template struct {
	ID      int    `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// PartialTemplate is the creation payload: a template without an id.
type PartialTemplate struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// WithID pairs the partial with a freshly minted id.
func (p PartialTemplate) WithID(id int) Template {
	return Template{ID: id, Subject: p.Subject, Body: p.Body}
}

// Predicate selects templates in Repository.Select.
type Predicate func(Template) bool

// All matches every template.
func All() Predicate {
	return func(Template) bool { return true }
}

// Matching returns a predicate that fuzzy matches query against the subject
// or the body. An empty query matches everything.
func Matching(query string) Predicate {
	if query == "" {
		return All()
	}
	return func(t Template) bool {
		return len(fuzzy.Find(query, []string{t.Subject, t.Body})) > 0
	}
}

// Repository defines behavior for storing templates. Implementations must be
// safe for concurrent use.
type Repository interface {
	// Create stores t under id, overwriting any existing record.
	Create(ctx context.Context, id int, t Template) error
	// Read returns the template stored under id. A missing record is not an
	// error: ok is false.
	Read(ctx context.Context, id int) (t Template, ok bool, err error)
	// Update replaces the record under id, creating it when absent.
	Update(ctx context.Context, id int, t Template) error
	// Delete removes the record under id. Deleting a missing id is a no-op.
	Delete(ctx context.Context, id int) error
	Count(ctx context.Context) (int, error)
	// Select returns every template for which pred is true, in no particular order.
	Select(ctx context.Context, pred Predicate) ([]Template, error)
}

var (
	// ErrRead indicates the store could not be read.
	ErrRead = errors.New("there was a problem reading from the template store")
	// ErrWrite indicates the store could not be written.
	ErrWrite = errors.New("there was a problem writing to the template store")
)
