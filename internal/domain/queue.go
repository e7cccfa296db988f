package domain

import (
	"time"
)

type TransferStatus string

const (
	StatusPending    TransferStatus = "pending"
	StatusInProgress TransferStatus = "in_progress"
	StatusPaused     TransferStatus = "paused"
	StatusCompleted  TransferStatus = "completed"
	StatusFailed     TransferStatus = "failed"
)

// transitions lists every status change the queue is allowed to make.
var transitions = map[TransferStatus][]TransferStatus{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusPaused, StatusPending, StatusFailed},
	StatusPaused:     {StatusPending},
}

func (s TransferStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the loop will never pick the item up again.
func (s TransferStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive reports whether an engine invocation may be running for the item.
func (s TransferStatus) IsActive() bool {
	return s == StatusInProgress
}

func (s TransferStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusPaused, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows s -> to.
func (s TransferStatus) CanTransition(to TransferStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// QueuedTransfer is a durable queue entry. Its JSON form is the on-disk snapshot format.
type QueuedTransfer struct {
	ID              string         `json:"id"`
	URL             string         `json:"url"`
	OutputPath      string         `json:"output_path"`
	FileName        string         `json:"file_name"`
	TotalBytes      int64          `json:"total_bytes"`
	BytesDownloaded int64          `json:"bytes_downloaded"`
	Status          TransferStatus `json:"status"`
	Priority        int            `json:"priority"`
	QueuedAt        time.Time      `json:"queued_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	RetryCount      int            `json:"retry_count"`
	MaxRetries      int            `json:"max_retries"`
	NextRetryAt     *time.Time     `json:"next_retry_at,omitempty"`
	LastError       string         `json:"last_error,omitempty"`
	Speed           float64        `json:"speed"`

	Options TransferOptions `json:"options"`
}

// Clone returns a deep copy so snapshots can leave the queue lock.
func (q *QueuedTransfer) Clone() *QueuedTransfer {
	c := *q
	c.StartedAt = cloneTime(q.StartedAt)
	c.CompletedAt = cloneTime(q.CompletedAt)
	c.NextRetryAt = cloneTime(q.NextRetryAt)
	if q.Options.AuthHeaders != nil {
		c.Options.AuthHeaders = make(map[string]string, len(q.Options.AuthHeaders))
		for k, v := range q.Options.AuthHeaders {
			c.Options.AuthHeaders[k] = v
		}
	}
	return &c
}

// ReadyAt reports whether a pending item may be dequeued at now.
func (q *QueuedTransfer) ReadyAt(now time.Time) bool {
	if q.Status != StatusPending {
		return false
	}
	return q.NextRetryAt == nil || !q.NextRetryAt.After(now)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr is a small helper for the optional timestamps.
func TimePtr(t time.Time) *time.Time {
	return &t
}
