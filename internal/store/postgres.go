package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/datallboy/modfetch/internal/domain"
)

// PostgresStore shares the queue between hosts through a Postgres table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	err = runMigrations(db, DriverPostgres)
	db.Close()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) LoadQueue(ctx context.Context) ([]*domain.QueuedTransfer, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+columns+" FROM queue_items ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query queue items: %w", err)
	}
	defer rows.Close()

	items := []*domain.QueuedTransfer{}
	for rows.Next() {
		var dbo queueItemDBO
		if err := rows.Scan(dbo.scanTargets()...); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}

		item, err := dbo.ToDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// SaveQueue replaces the table contents in one transaction, bulk loading
// the new snapshot with COPY.
func (s *PostgresStore) SaveQueue(ctx context.Context, items []*domain.QueuedTransfer) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM queue_items"); err != nil {
		return fmt.Errorf("failed to clear queue items: %w", err)
	}

	rows := make([][]any, 0, len(items))
	for i, item := range items {
		var dbo queueItemDBO
		if err := dbo.FromDomain(item, i); err != nil {
			return err
		}
		rows = append(rows, dbo.values())
	}

	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"queue_items"}, columnNames, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("failed to copy queue items: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
