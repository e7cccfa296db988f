package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/datallboy/modfetch/internal/api/controllers"
	"github.com/datallboy/modfetch/internal/domain"
	"github.com/datallboy/modfetch/internal/infra/logger"
)

// Client talks to a running modfetch server. The CLI uses it for every
// command except serve and fetch.
type Client struct {
	client *resty.Client
}

func NewClient(baseURL string, log *logger.Logger) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json").
		SetLogger(log)

	return &Client{client: c}
}

func (c *Client) List(ctx context.Context) ([]*domain.QueuedTransfer, error) {
	var items []*domain.QueuedTransfer
	if err := c.do(ctx, http.MethodGet, "/api/queue", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) Get(ctx context.Context, id string) (*domain.QueuedTransfer, error) {
	var item domain.QueuedTransfer
	if err := c.do(ctx, http.MethodGet, "/api/queue/"+id, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) Enqueue(ctx context.Context, req controllers.EnqueueRequest) (string, error) {
	var out controllers.EnqueueResponse
	if err := c.do(ctx, http.MethodPost, "/api/queue", req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) Remove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/queue/"+id, nil, nil)
}

func (c *Client) Pause(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/queue/"+id+"/pause", nil, nil)
}

func (c *Client) Resume(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/queue/"+id+"/resume", nil, nil)
}

func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/queue", nil, nil)
}

func (c *Client) Quota(ctx context.Context) (domain.QuotaState, error) {
	var st domain.QuotaState
	err := c.do(ctx, http.MethodGet, "/api/quota", nil, &st)
	return st, err
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Unwrap lets callers use errors.Is with the domain sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrInvalidTransition
	case http.StatusBadRequest:
		return domain.ErrInvalidRequest
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.client.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.IsError() {
		var apiErr controllers.ErrorResponse
		msg := strings.TrimSpace(string(resp.Body()))
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{Status: resp.StatusCode(), Message: msg}
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
