package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/semaphore"

	"github.com/datallboy/modfetch/internal/domain"
	"github.com/datallboy/modfetch/internal/infra/logger"
)

const (
	DefaultMaxConcurrent    = 3
	DefaultChunkSize        = 64 * 1024
	DefaultProgressInterval = 100 * time.Millisecond
	DefaultUserAgent        = "modfetch/1.0"
)

// Engine performs single-file transfers. At most maxConcurrent run at once;
// further callers wait for a free slot.
type Engine struct {
	client *resty.Client
	slots  *semaphore.Weighted
	log    *logger.Logger

	maxConcurrent    int
	chunkSize        int
	progressInterval time.Duration
	timeout          time.Duration
	userAgent        string
	httpClient       *http.Client
}

type Option func(*Engine)

func WithMaxConcurrent(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

func WithChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithProgressInterval sets the default throttle used when a request
// doesn't carry its own.
func WithProgressInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.progressInterval = d
		}
	}
}

// WithTimeout bounds a whole attempt. Zero means no limit, which is what
// large files need.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

func WithUserAgent(ua string) Option {
	return func(e *Engine) {
		if ua != "" {
			e.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the underlying transport, mostly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.httpClient = c }
}

func New(log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		log:              log,
		maxConcurrent:    DefaultMaxConcurrent,
		chunkSize:        DefaultChunkSize,
		progressInterval: DefaultProgressInterval,
		userAgent:        DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.httpClient == nil {
		e.httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				// Compressed bodies would break byte offsets
				DisableCompression: true,
			},
		}
	}

	e.client = resty.NewWithClient(e.httpClient).
		SetRetryCount(0).
		SetHeader("User-Agent", e.userAgent).
		SetLogger(log)
	if e.timeout > 0 {
		e.client.SetTimeout(e.timeout)
	}

	e.slots = semaphore.NewWeighted(int64(e.maxConcurrent))
	return e
}

// MaxConcurrent reports the slot count.
func (e *Engine) MaxConcurrent() int {
	return e.maxConcurrent
}

// Transfer downloads req.URL to req.Destination. It never returns nil; the
// outcome, including cancellation, is described by the result.
func (e *Engine) Transfer(ctx context.Context, req domain.TransferRequest) *domain.TransferResult {
	result := &domain.TransferResult{
		URL:          req.URL,
		ExpectedHash: req.Options.ExpectedHash,
	}

	if err := req.Validate(); err != nil {
		return result.Fail(err)
	}

	if err := e.slots.Acquire(ctx, 1); err != nil {
		return cancelled(ctx, result)
	}
	defer e.slots.Release(1)

	url := req.URL
	resume := req.Options.AllowResume
	refreshed := false

	for {
		err := e.attempt(ctx, req, url, resume, result)
		if err == nil {
			break
		}

		if ctx.Err() != nil {
			return cancelled(ctx, result)
		}

		if errors.Is(err, errPartialTooLong) && resume {
			// The remote file shrank under the partial one; start over once
			e.log.Info("Partial file %s is longer than the remote file, restarting from zero", req.Destination)
			resume = false
			continue
		}

		var statusErr *StatusError
		if !errors.As(err, &statusErr) || !statusErr.Stale() || req.Refresh == nil || refreshed {
			e.log.Debug("Transfer %s failed: %v", url, err)
			return result.Fail(err)
		}

		// A stale link gets exactly one refresh per transfer
		refreshed = true
		fresh, rerr := req.Refresh(ctx, url)
		if rerr != nil {
			if ctx.Err() != nil {
				return cancelled(ctx, result)
			}
			return result.Fail(fmt.Errorf("refresh stale url: %w", rerr))
		}
		if fresh == "" || fresh == url {
			return result.Fail(err)
		}

		e.log.Info("Download link for %s refreshed after %d, retrying", req.Destination, statusErr.Code)
		url = fresh
		result.URL = fresh
	}

	if req.Options.ExpectedHash != "" {
		if err := verifyHash(req, result); err != nil {
			return result.Fail(err)
		}
	}

	result.Success = true
	e.log.Debug("Transferred %s to %s (resumed=%t)",
		humanize.Bytes(uint64(result.BytesDownloaded)), req.Destination, result.Resumed)
	return result
}

// attempt runs one request against url, resuming from the partial file
// when resume is set. The result's per-attempt fields are reset so a
// restarted attempt never double counts.
func (e *Engine) attempt(ctx context.Context, req domain.TransferRequest, url string, resume bool, result *domain.TransferResult) error {
	result.BytesDownloaded = 0
	result.Resumed = false

	var offset int64
	if resume {
		size, err := existingSize(req.Destination)
		if err != nil {
			return err
		}
		offset = size
	}

	r := e.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeaders(req.Options.AuthHeaders)

	if offset > 0 {
		r.SetHeader("Range", fmt.Sprintf("bytes=%d-", offset))
		if req.Options.ETag != "" {
			r.SetHeader("If-Range", `"`+req.Options.ETag+`"`)
		}
	}

	resp, err := r.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	var total int64
	switch code := resp.StatusCode(); code {
	case http.StatusPartialContent:
		start, _, size, err := ParseContentRange(resp.Header().Get("Content-Range"))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadRange, err)
		}
		if start != offset {
			return fmt.Errorf("%w: requested offset %d, got %d", ErrBadRange, offset, start)
		}
		total = size
		if total < 0 && resp.RawResponse.ContentLength >= 0 {
			total = offset + resp.RawResponse.ContentLength
		}
		result.Resumed = offset > 0

	case http.StatusOK:
		if offset > 0 {
			e.log.Debug("Server ignored range request for %s, restarting from zero", url)
		}
		offset = 0
		total = resp.RawResponse.ContentLength

	case http.StatusRequestedRangeNotSatisfiable:
		size, ok := parseUnsatisfiedRange(resp.Header().Get("Content-Range"))
		if ok && offset > 0 && size == offset {
			result.TotalBytes = size
			result.Resumed = true
			newProgressTracker(req.ID, offset, size, e.intervalFor(req), req.OnProgress).Finish()
			return nil
		}
		if ok && size < offset {
			return fmt.Errorf("%w: local %d bytes, remote %d", errPartialTooLong, offset, size)
		}
		return newStatusError(code, url)

	default:
		return newStatusError(code, url)
	}

	if total < 0 {
		total = 0
	}
	result.TotalBytes = total
	if etag := cleanETag(resp.Header().Get("ETag")); etag != "" {
		result.ETag = etag
	}

	w, err := openDestination(req.Destination, offset > 0)
	if err != nil {
		return err
	}

	tracker := newProgressTracker(req.ID, offset, total, e.intervalFor(req), req.OnProgress)
	copyErr := e.stream(ctx, body, w, tracker, result)
	if err := w.Close(); err != nil && copyErr == nil {
		copyErr = fmt.Errorf("could not finalise destination file: %w", err)
	}
	if copyErr != nil {
		return copyErr
	}

	written := offset + result.BytesDownloaded
	if total > 0 && written < total {
		return fmt.Errorf("%w: %d of %d bytes: %w", ErrShortTransfer, written, total, io.ErrUnexpectedEOF)
	}
	if total == 0 {
		result.TotalBytes = written
		tracker.total = written
	}

	tracker.Finish()
	return nil
}

// stream copies body to w one chunk at a time.
func (e *Engine) stream(ctx context.Context, body io.Reader, w *fileWriter, tracker *progressTracker, result *domain.TransferResult) error {
	buf := make([]byte, e.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, rerr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return fmt.Errorf("could not write to destination: %w", err)
			}
			result.BytesDownloaded += int64(n)
			tracker.Add(int64(n))
		}

		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("read response body: %w", rerr)
		}
	}
}

func (e *Engine) intervalFor(req domain.TransferRequest) time.Duration {
	if req.Options.ProgressInterval > 0 {
		return req.Options.ProgressInterval
	}
	return e.progressInterval
}

func verifyHash(req domain.TransferRequest, result *domain.TransferResult) error {
	algo, err := domain.ParseHashAlgorithm(string(req.Options.HashAlgorithm))
	if err != nil {
		return err
	}

	sum, err := domain.CalculateFileHash(req.Destination, algo)
	if err != nil {
		return fmt.Errorf("hash destination file: %w", err)
	}
	result.ComputedHash = sum

	if !domain.HashesEqual(sum, req.Options.ExpectedHash) {
		return fmt.Errorf("%w: expected %s, got %s", domain.ErrHashMismatch, req.Options.ExpectedHash, sum)
	}

	result.HashVerified = true
	return nil
}

func cancelled(ctx context.Context, result *domain.TransferResult) *domain.TransferResult {
	result.Cancelled = true
	return result.Fail(fmt.Errorf("%w: %w", domain.ErrCancelled, context.Cause(ctx)))
}
