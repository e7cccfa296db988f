package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/datallboy/modfetch/internal/domain"
)

// queueItemDBO maps to the queue_items table. Timestamps are unix
// nanoseconds; nil pointers are NULL columns.
type queueItemDBO struct {
	ID              string  `db:"id"`
	Position        int     `db:"position"`
	URL             string  `db:"url"`
	OutputPath      string  `db:"output_path"`
	FileName        string  `db:"file_name"`
	TotalBytes      int64   `db:"total_bytes"`
	BytesDownloaded int64   `db:"bytes_downloaded"`
	Status          string  `db:"status"`
	Priority        int     `db:"priority"`
	QueuedAt        int64   `db:"queued_at"`
	StartedAt       *int64  `db:"started_at"`
	CompletedAt     *int64  `db:"completed_at"`
	RetryCount      int     `db:"retry_count"`
	MaxRetries      int     `db:"max_retries"`
	NextRetryAt     *int64  `db:"next_retry_at"`
	LastError       string  `db:"last_error"`
	Speed           float64 `db:"speed"`
	Options         string  `db:"options"`
}

// columns is the column order used by every query and by values().
const columns = `id, position, url, output_path, file_name, total_bytes, bytes_downloaded, status, priority,
	queued_at, started_at, completed_at, retry_count, max_retries, next_retry_at, last_error, speed, options`

var columnNames = []string{
	"id", "position", "url", "output_path", "file_name", "total_bytes", "bytes_downloaded", "status", "priority",
	"queued_at", "started_at", "completed_at", "retry_count", "max_retries", "next_retry_at", "last_error", "speed", "options",
}

// Mapper: Domain QueuedTransfer to DBO
func (q *queueItemDBO) FromDomain(item *domain.QueuedTransfer, position int) error {
	opts, err := json.Marshal(item.Options)
	if err != nil {
		return fmt.Errorf("failed to encode options for %s: %w", item.ID, err)
	}

	*q = queueItemDBO{
		ID:              item.ID,
		Position:        position,
		URL:             item.URL,
		OutputPath:      item.OutputPath,
		FileName:        item.FileName,
		TotalBytes:      item.TotalBytes,
		BytesDownloaded: item.BytesDownloaded,
		Status:          string(item.Status),
		Priority:        item.Priority,
		QueuedAt:        item.QueuedAt.UnixNano(),
		StartedAt:       toNanos(item.StartedAt),
		CompletedAt:     toNanos(item.CompletedAt),
		RetryCount:      item.RetryCount,
		MaxRetries:      item.MaxRetries,
		NextRetryAt:     toNanos(item.NextRetryAt),
		LastError:       item.LastError,
		Speed:           item.Speed,
		Options:         string(opts),
	}
	return nil
}

// Mapper: DBO to Domain QueuedTransfer
func (q *queueItemDBO) ToDomain() (*domain.QueuedTransfer, error) {
	item := &domain.QueuedTransfer{
		ID:              q.ID,
		URL:             q.URL,
		OutputPath:      q.OutputPath,
		FileName:        q.FileName,
		TotalBytes:      q.TotalBytes,
		BytesDownloaded: q.BytesDownloaded,
		Status:          domain.TransferStatus(q.Status),
		Priority:        q.Priority,
		QueuedAt:        time.Unix(0, q.QueuedAt),
		StartedAt:       fromNanos(q.StartedAt),
		CompletedAt:     fromNanos(q.CompletedAt),
		RetryCount:      q.RetryCount,
		MaxRetries:      q.MaxRetries,
		NextRetryAt:     fromNanos(q.NextRetryAt),
		LastError:       q.LastError,
		Speed:           q.Speed,
	}

	if q.Options != "" {
		if err := json.Unmarshal([]byte(q.Options), &item.Options); err != nil {
			return nil, fmt.Errorf("failed to decode options for %s: %w", q.ID, err)
		}
	}
	return item, nil
}

// scanTargets returns pointers in column order.
func (q *queueItemDBO) scanTargets() []any {
	return []any{
		&q.ID, &q.Position, &q.URL, &q.OutputPath, &q.FileName, &q.TotalBytes, &q.BytesDownloaded, &q.Status, &q.Priority,
		&q.QueuedAt, &q.StartedAt, &q.CompletedAt, &q.RetryCount, &q.MaxRetries, &q.NextRetryAt, &q.LastError, &q.Speed, &q.Options,
	}
}

// values returns the row in column order.
func (q *queueItemDBO) values() []any {
	return []any{
		q.ID, q.Position, q.URL, q.OutputPath, q.FileName, q.TotalBytes, q.BytesDownloaded, q.Status, q.Priority,
		q.QueuedAt, q.StartedAt, q.CompletedAt, q.RetryCount, q.MaxRetries, q.NextRetryAt, q.LastError, q.Speed, q.Options,
	}
}

func toNanos(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	n := t.UnixNano()
	return &n
}

func fromNanos(n *int64) *time.Time {
	if n == nil {
		return nil
	}
	t := time.Unix(0, *n)
	return &t
}
