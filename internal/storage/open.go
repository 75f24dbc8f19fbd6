package storage

import (
	"context"
	"fmt"
)

type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Open builds the backend named by opts.Driver and brings its schema up to date.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "json":
		return OpenJSON(opts.Path)
	case "sqlite":
		store, err := NewSQLite(opts.Path)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := NewPostgres(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
