package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/datallboy/modfetch/internal/domain"
)

// SQLiteStore keeps the queue in a single queue_items table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure the database directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Ping makes sure the file is actually accessible and the DSN is valid
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := runMigrations(db, DriverSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) LoadQueue(ctx context.Context) ([]*domain.QueuedTransfer, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+columns+" FROM queue_items ORDER BY position ASC")
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

// SaveQueue replaces the table contents in one transaction.
func (s *SQLiteStore) SaveQueue(ctx context.Context, items []*domain.QueuedTransfer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM queue_items"); err != nil {
		return fmt.Errorf("failed to clear queue items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO queue_items (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, item := range items {
		var dbo queueItemDBO
		if err := dbo.FromDomain(item, i); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, dbo.values()...); err != nil {
			return fmt.Errorf("failed to insert queue item %s: %w", item.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
