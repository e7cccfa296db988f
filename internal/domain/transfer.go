package domain

import (
	"context"
	"time"
)

// URLRefresher re-resolves a download link that the host reported as gone or forbidden.
// Returning the same URL (or an empty one) means no fresher link exists.
type URLRefresher func(ctx context.Context, staleURL string) (string, error)

// TransferOptions are the per-transfer knobs that survive a restart.
type TransferOptions struct {
	AllowResume      bool              `json:"allow_resume"`
	ExpectedHash     string            `json:"expected_hash,omitempty"`
	HashAlgorithm    HashAlgorithm     `json:"hash_algorithm,omitempty"`
	AuthHeaders      map[string]string `json:"auth_headers,omitempty"`
	RefreshEndpoint  string            `json:"refresh_endpoint,omitempty"`
	ProgressInterval time.Duration     `json:"progress_interval,omitempty"`

	// ETag of the partial file on disk. Sent as If-Range so a changed
	// remote file is downloaded from scratch instead of spliced.
	ETag string `json:"etag,omitempty"`
}

// TransferRequest describes a single file transfer handed to the engine.
type TransferRequest struct {
	ID          string
	URL         string
	Destination string
	Options     TransferOptions

	Refresh    URLRefresher
	OnProgress func(Progress)
}

func (r TransferRequest) Validate() error {
	if r.URL == "" || r.Destination == "" {
		return ErrInvalidRequest
	}
	return nil
}

// TransferResult is the outcome of one engine invocation.
type TransferResult struct {
	Success         bool   `json:"success"`
	BytesDownloaded int64  `json:"bytes_downloaded"`
	TotalBytes      int64  `json:"total_bytes"`
	Resumed         bool   `json:"resumed"`
	ETag            string `json:"etag,omitempty"`
	URL             string `json:"url"`
	ComputedHash    string `json:"computed_hash,omitempty"`
	ExpectedHash    string `json:"expected_hash,omitempty"`
	HashVerified    bool   `json:"hash_verified"`
	Cancelled       bool   `json:"cancelled"`
	Error           string `json:"error,omitempty"`

	Err error `json:"-"`
}

// Fail records err on the result and marks it unsuccessful.
func (r *TransferResult) Fail(err error) *TransferResult {
	r.Success = false
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
