// Package redis persists templates in a Redis hash.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"templateflow/pkg/template"
)

// DefaultKey is the hash holding every template, one field per id.
const DefaultKey = "templates"

// Repository stores templates as JSON values of a single Redis hash.
type Repository struct {
	client *goredis.Client
	key    string
}

// New creates a Redis repository storing templates under key.
func New(client *goredis.Client, key string) *Repository {
	if key == "" {
		key = DefaultKey
	}
	return &Repository{client: client, key: key}
}

// Open parses a redis:// URL, connects and verifies the connection.
func Open(ctx context.Context, url string) (*Repository, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(client, DefaultKey), nil
}

func field(id int) string {
	return strconv.Itoa(id)
}

// Create stores the template under id, overwriting any existing value.
func (r *Repository) Create(ctx context.Context, id int, t template.Template) error {
	t.ID = id
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("%w: %w", template.ErrWrite, err)
	}
	if err := r.client.HSet(ctx, r.key, field(id), b).Err(); err != nil {
		return fmt.Errorf("%w: %w", template.ErrWrite, err)
	}
	return nil
}

// Read retrieves a template by id.
func (r *Repository) Read(ctx context.Context, id int) (template.Template, bool, error) {
	b, err := r.client.HGet(ctx, r.key, field(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return template.Template{}, false, nil
	}
	if err != nil {
		return template.Template{}, false, fmt.Errorf("%w: %w", template.ErrRead, err)
	}
	var t template.Template
	if err := json.Unmarshal(b, &t); err != nil {
		return template.Template{}, false, fmt.Errorf("%w: decode template %d: %w", template.ErrRead, id, err)
	}
	return t, true, nil
}

// Update replaces the template under id, inserting it when absent.
func (r *Repository) Update(ctx context.Context, id int, t template.Template) error {
	return r.Create(ctx, id, t)
}

// Delete removes a template by id.
func (r *Repository) Delete(ctx context.Context, id int) error {
	if err := r.client.HDel(ctx, r.key, field(id)).Err(); err != nil {
		return fmt.Errorf("%w: %w", template.ErrWrite, err)
	}
	return nil
}

// Count returns the number of stored templates.
func (r *Repository) Count(ctx context.Context) (int, error) {
	n, err := r.client.HLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", template.ErrRead, err)
	}
	return int(n), nil
}

// Select loads every template and keeps those matching pred.
func (r *Repository) Select(ctx context.Context, pred template.Predicate) ([]template.Template, error) {
	vals, err := r.client.HVals(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", template.ErrRead, err)
	}
	templates := make([]template.Template, 0, len(vals))
	for _, v := range vals {
		var t template.Template
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, fmt.Errorf("%w: decode template: %w", template.ErrRead, err)
		}
		if pred(t) {
			templates = append(templates, t)
		}
	}
	return templates, nil
}

// Close closes the client.
func (r *Repository) Close() error {
	return r.client.Close()
}
