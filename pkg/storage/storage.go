// Package storage selects the template backing store from a connection string.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"templateflow/pkg/logger"
	"templateflow/pkg/template"
	"templateflow/pkg/template/memory"
	"templateflow/pkg/template/postgres"
	"templateflow/pkg/template/redis"
	"templateflow/pkg/template/sqlite"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns the repository addressed by dsn:
//
//	""                          in-memory map
//	postgres://, postgresql://  PostgreSQL
//	sqlite://<path>             SQLite file, or sqlite://:memory:
//	redis://, rediss://         Redis hash
//
// The returned closer releases the backend's connections.
func Open(ctx context.Context, dsn string, log *logger.Logger) (template.Repository, io.Closer, error) {
	scheme, rest, _ := strings.Cut(dsn, "://")
	switch strings.ToLower(scheme) {
	case "":
		if dsn != "" {
			return nil, nil, fmt.Errorf("connection string %q has no scheme", dsn)
		}
		log.Info(ctx, "storage selected", "backend", "memory")
		return memory.New(), nopCloser{}, nil
	case "postgres", "postgresql":
		repo, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		log.Info(ctx, "storage selected", "backend", "postgres")
		return repo, repo, nil
	case "sqlite":
		if rest == "" {
			return nil, nil, fmt.Errorf("sqlite connection string needs a path")
		}
		repo, err := sqlite.Open(ctx, rest)
		if err != nil {
			return nil, nil, err
		}
		log.Info(ctx, "storage selected", "backend", "sqlite", "path", rest)
		return repo, repo, nil
	case "redis", "rediss":
		repo, err := redis.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		log.Info(ctx, "storage selected", "backend", "redis")
		return repo, repo, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage scheme %q", scheme)
	}
}
