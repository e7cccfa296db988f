package domain

import "time"

// Progress is a throttled snapshot of a running transfer. Never persisted.
type Progress struct {
	TransferID      string        `json:"transfer_id,omitempty"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	TotalBytes      int64         `json:"total_bytes"`
	Percentage      float64       `json:"percentage"`
	Speed           float64       `json:"speed"` // bytes per second
	ETA             time.Duration `json:"eta"`
	IsComplete      bool          `json:"is_complete"`
}
