package controllers

import "github.com/datallboy/modfetch/internal/domain"

// EnqueueRequest is the body of POST /api/queue. OutputPath defaults to
// the download directory joined with FileName, or with the last segment
// of the URL when neither is given.
type EnqueueRequest struct {
	URL        string                 `json:"url"`
	OutputPath string                 `json:"output_path,omitempty"`
	FileName   string                 `json:"file_name,omitempty"`
	Priority   int                    `json:"priority"`
	MaxRetries int                    `json:"max_retries,omitempty"`
	Options    domain.TransferOptions `json:"options"`
}

type EnqueueResponse struct {
	ID string `json:"id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
