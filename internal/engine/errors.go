package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

var (
	ErrNotFound      = errors.New("engine: resource not found")
	ErrForbidden     = errors.New("engine: access forbidden")
	ErrUnauthorized  = errors.New("engine: unauthorized")
	ErrServerError   = errors.New("engine: server error")
	ErrBadRange      = errors.New("engine: server returned an unexpected range")
	ErrShortTransfer = errors.New("engine: body ended before the advertised size")

	errPartialTooLong = errors.New("engine: partial file is longer than the remote file")
)

// StatusError is returned for any response the engine cannot stream.
type StatusError struct {
	Code int
	URL  string
	err  error
}

func newStatusError(code int, url string) *StatusError {
	return &StatusError{Code: code, URL: url, err: classifyStatus(code)}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %d %s (%s)", e.err, e.Code, http.StatusText(e.Code), e.URL)
}

func (e *StatusError) Unwrap() error { return e.err }

// Stale reports whether the link itself looks expired, as opposed to the
// host failing. Only these statuses trigger a URL refresh.
func (e *StatusError) Stale() bool {
	switch e.Code {
	case http.StatusNotFound, http.StatusForbidden, http.StatusGone:
		return true
	}
	return false
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusNotFound, code == http.StatusGone:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code >= 500:
		return ErrServerError
	default:
		return fmt.Errorf("engine: unexpected status code")
	}
}

// cleanETag removes quotes and the weak prefix from an ETag value.
func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)
	return etag
}

// ParseContentRange parses a Content-Range header value.
// Returns start, end, total bytes. Total is -1 if unknown.
func ParseContentRange(header string) (start, end, total int64, err error) {
	// Format: bytes start-end/total or bytes start-end/*
	header = strings.TrimPrefix(strings.TrimSpace(header), "bytes ")
	parts := strings.Split(header, "/")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	rangeParts := strings.Split(parts[0], "-")
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	start, err = strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}

	end, err = strconv.ParseInt(rangeParts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}

	total, err = parseTotal(parts[1])
	if err != nil {
		return 0, 0, 0, err
	}

	return start, end, total, nil
}

// parseUnsatisfiedRange reads the total from a 416 "bytes */total" header.
func parseUnsatisfiedRange(header string) (int64, bool) {
	header = strings.TrimPrefix(strings.TrimSpace(header), "bytes ")
	if !strings.HasPrefix(header, "*/") {
		return 0, false
	}
	total, err := parseTotal(strings.TrimPrefix(header, "*/"))
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}

func parseTotal(s string) (int64, error) {
	if s == "*" {
		return -1, nil
	}
	total, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid total bytes: %w", err)
	}
	return total, nil
}
