package storage

import (
	"context"
	"fmt"
)

// Options selects and configures a backend.
type Options struct {
	Backend  string // file, sqlite, s3 or redis
	FilePath string
	DBPath   string
	Name     string
	S3       S3Options
	Redis    RedisOptions
}

// Open builds the store for the configured backend.
func Open(ctx context.Context, opts Options) (*Store, error) {
	var (
		backend Backend
		err     error
	)
	switch opts.Backend {
	case "", "file":
		backend = NewFile(opts.FilePath)
	case "sqlite":
		backend, err = NewSQLite(opts.DBPath, opts.Name)
	case "s3":
		backend, err = NewS3(ctx, opts.S3)
	case "redis":
		backend, err = NewRedis(ctx, opts.Redis)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", opts.Backend, err)
	}
	return New(backend), nil
}
