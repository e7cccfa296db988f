package store

import (
	"context"
	"fmt"

	"github.com/datallboy/modfetch/internal/domain"
)

// QueueStore persists complete queue snapshots. SaveQueue replaces
// whatever was stored before, so a crash mid-save never leaves a mix of
// old and new items.
type QueueStore interface {
	LoadQueue(ctx context.Context) ([]*domain.QueuedTransfer, error)
	SaveQueue(ctx context.Context, items []*domain.QueuedTransfer) error
	Close() error
}

const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns the store for driver. path is used by the file and sqlite
// drivers, dsn by postgres.
func Open(ctx context.Context, driver, path, dsn string) (QueueStore, error) {
	switch driver {
	case DriverFile, "":
		return NewFileStore(path), nil
	case DriverSQLite:
		return NewSQLiteStore(path)
	case DriverPostgres:
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
