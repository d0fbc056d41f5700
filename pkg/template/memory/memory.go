// Package memory implements an in-memory template repository.
package memory

import (
	"context"
	"fmt"
	"sync"

	"templateflow/pkg/template"
)

// Repository provides an in-memory implementation of template.Repository.
//
// A panic while the write lock is held poisons the repository: the map may
// be half-updated, so every later call fails with template.ErrRead or
// template.ErrWrite.
type Repository struct {
	mu        sync.RWMutex
	poisoned  bool
	templates map[int]template.Template
}

// New creates a new in-memory repository.
func New() *Repository {
	return &Repository{templates: make(map[int]template.Template)}
}

// write runs fn under the write lock.
func (r *Repository) write(fn func()) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.poisoned {
		return template.ErrWrite
	}
	defer func() {
		if p := recover(); p != nil {
			r.poisoned = true
			err = fmt.Errorf("%w: panic: %v", template.ErrWrite, p)
		}
	}()
	fn()
	return nil
}

// read runs fn under the read lock. Readers never mutate the map, so a panic
// here is reported but does not poison the repository.
func (r *Repository) read(fn func()) (err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.poisoned {
		return template.ErrRead
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", template.ErrRead, p)
		}
	}()
	fn()
	return nil
}

// Create stores the template under id, overwriting any existing record.
// The stored record always carries id.
func (r *Repository) Create(ctx context.Context, id int, t template.Template) error {
	t.ID = id
	return r.write(func() {
		r.templates[id] = t
	})
}

// Read returns a copy of the template stored under id.
func (r *Repository) Read(ctx context.Context, id int) (template.Template, bool, error) {
	var (
		t  template.Template
		ok bool
	)
	err := r.read(func() {
		t, ok = r.templates[id]
	})
	return t, ok, err
}

// Update replaces the template under id, inserting it when absent.
func (r *Repository) Update(ctx context.Context, id int, t template.Template) error {
	return r.Create(ctx, id, t)
}

// Delete removes the template under id if present.
func (r *Repository) Delete(ctx context.Context, id int) error {
	return r.write(func() {
		delete(r.templates, id)
	})
}

// Count returns the number of stored templates.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.read(func() {
		n = len(r.templates)
	})
	return n, err
}

// Select returns all templates matching pred.
func (r *Repository) Select(ctx context.Context, pred template.Predicate) ([]template.Template, error) {
	var out []template.Template
	err := r.read(func() {
		out = make([]template.Template, 0, len(r.templates))
		for _, t := range r.templates {
			if pred(t) {
				out = append(out, t)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
