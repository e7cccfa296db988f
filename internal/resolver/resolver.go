package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/datallboy/modfetch/internal/infra/logger"
	"github.com/datallboy/modfetch/internal/ratelimit"
)

var ErrNoLinks = errors.New("resolver: endpoint returned no download links")

// Link is one mirror entry from a download_link endpoint.
type Link struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	URI       string `json:"URI"`
}

// Client re-resolves download links through the host's API. Every call
// goes through the rate governor.
type Client struct {
	client *resty.Client
	log    *logger.Logger
}

type Option func(*resty.Client)

func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) {
		if d > 0 {
			c.SetTimeout(d)
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *resty.Client) {
		if ua != "" {
			c.SetHeader("User-Agent", ua)
		}
	}
}

func New(apiKey string, governor *ratelimit.Governor, log *logger.Logger, opts ...Option) *Client {
	c := resty.New().
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json").
		SetLogger(log)
	if apiKey != "" {
		c.SetHeader("apikey", apiKey)
	}
	for _, opt := range opts {
		opt(c)
	}
	if governor != nil {
		governor.Attach(c)
	}

	return &Client{client: c, log: log}
}

// Links returns every mirror the endpoint offers.
func (c *Client) Links(ctx context.Context, endpoint string) ([]Link, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", endpoint, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("resolve %s: unexpected status %d", endpoint, resp.StatusCode())
	}

	var links []Link
	if err := json.Unmarshal(resp.Body(), &links); err != nil {
		return nil, fmt.Errorf("resolve %s: decode response: %w", endpoint, err)
	}
	return links, nil
}

// Resolve returns the first mirror's URI.
func (c *Client) Resolve(ctx context.Context, endpoint string) (string, error) {
	links, err := c.Links(ctx, endpoint)
	if err != nil {
		return "", err
	}

	for _, l := range links {
		if l.URI != "" {
			c.log.Debug("Resolved %s to mirror %s", endpoint, l.Name)
			return l.URI, nil
		}
	}
	return "", ErrNoLinks
}
