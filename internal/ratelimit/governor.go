package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/datallboy/modfetch/internal/domain"
	"github.com/datallboy/modfetch/internal/infra/logger"
)

// ErrWaitCancelled is returned by WaitIfNeeded when its context ends first.
var ErrWaitCancelled = errors.New("quota wait cancelled")

const DefaultFallbackWait = 60 * time.Second

// Governor mirrors a remote daily/hourly request quota. Server-reported
// values always win; ReserveRequest only narrows the window between a
// permission check and the response that corrects it.
type Governor struct {
	mu    sync.Mutex
	state domain.QuotaState

	log          *logger.Logger
	prefix       string
	statePath    string
	fallbackWait time.Duration
	now          func() time.Time
}

type Option func(*Governor)

// WithHeaderPrefix sets the quota header prefix, "X-RL-" by default.
func WithHeaderPrefix(prefix string) Option {
	return func(g *Governor) {
		if prefix != "" {
			g.prefix = prefix
		}
	}
}

// WithStatePath makes every header update rewrite the state file at path.
func WithStatePath(path string) Option {
	return func(g *Governor) { g.statePath = path }
}

func WithFallbackWait(d time.Duration) Option {
	return func(g *Governor) {
		if d > 0 {
			g.fallbackWait = d
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

func New(log *logger.Logger, opts ...Option) *Governor {
	g := &Governor{
		log:          log,
		prefix:       "X-RL-",
		fallbackWait: DefaultFallbackWait,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.state = domain.DefaultQuotaState(g.now())
	return g
}

// State returns a copy of the current counters.
func (g *Governor) State() domain.QuotaState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// UpdateFromHeaders overwrites the counters with whatever quota headers are
// present. It reports whether any were found.
func (g *Governor) UpdateFromHeaders(h http.Header) bool {
	if h == nil {
		return false
	}

	g.mu.Lock()
	next := g.state
	found := false

	if v, ok := g.intHeader(h, "Daily-Limit"); ok {
		next.DailyLimit, found = v, true
	}
	if v, ok := g.intHeader(h, "Daily-Remaining"); ok {
		next.DailyRemaining, found = v, true
	}
	if v, ok := g.timeHeader(h, "Daily-Reset"); ok {
		next.DailyReset, found = v, true
	}
	if v, ok := g.intHeader(h, "Hourly-Limit"); ok {
		next.HourlyLimit, found = v, true
	}
	if v, ok := g.intHeader(h, "Hourly-Remaining"); ok {
		next.HourlyRemaining, found = v, true
	}
	if v, ok := g.timeHeader(h, "Hourly-Reset"); ok {
		next.HourlyReset, found = v, true
	}

	if found {
		g.state = next
	}
	snapshot := g.state
	g.mu.Unlock()

	if !found {
		return false
	}

	g.log.Debug("Rate limits updated: daily=%d/%d hourly=%d/%d",
		snapshot.DailyRemaining, snapshot.DailyLimit, snapshot.HourlyRemaining, snapshot.HourlyLimit)

	if g.statePath != "" {
		if err := writeState(g.statePath, snapshot); err != nil {
			g.log.Error("Failed to save rate limiter state: %v", err)
		}
	}

	return true
}

// CanMakeRequest reports whether both windows have budget left.
func (g *Governor) CanMakeRequest() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.DailyRemaining > 0 && g.state.HourlyRemaining > 0
}

// ReserveRequest takes one request from both windows ahead of the network call.
func (g *Governor) ReserveRequest() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.DailyRemaining > 0 {
		g.state.DailyRemaining--
	}
	if g.state.HourlyRemaining > 0 {
		g.state.HourlyRemaining--
	}
}

// WaitIfNeeded blocks until the nearest reset of an exhausted window, or
// the fallback wait when no exhausted window has a future reset time.
// Counters are never refilled locally; only server headers restore them.
func (g *Governor) WaitIfNeeded(ctx context.Context) error {
	delay, reason := g.delay()
	if delay <= 0 {
		return nil
	}

	g.log.Warn("%s. Waiting %s until reset...", reason, delay.Round(time.Second))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrWaitCancelled, ctx.Err())
	case <-timer.C:
		g.log.Info("Rate limit reset reached, resuming operations")
		return nil
	}
}

func (g *Governor) delay() (time.Duration, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	var (
		nearest time.Time
		reasons []string
	)

	consider := func(remaining int, reset time.Time, name string) {
		if remaining > 0 {
			return
		}
		reasons = append(reasons, name+" rate limit exhausted")
		if reset.After(now) && (nearest.IsZero() || reset.Before(nearest)) {
			nearest = reset
		}
	}
	consider(g.state.DailyRemaining, g.state.DailyReset, "Daily")
	consider(g.state.HourlyRemaining, g.state.HourlyReset, "Hourly")

	if len(reasons) == 0 {
		return 0, ""
	}

	reason := strings.Join(reasons, ", ")
	if nearest.IsZero() {
		return g.fallbackWait, reason
	}
	return nearest.Sub(now), reason
}

// SaveState writes the full quota snapshot to path.
func (g *Governor) SaveState(path string) error {
	if err := writeState(path, g.State()); err != nil {
		return fmt.Errorf("save rate limiter state: %w", err)
	}
	g.log.Debug("Saved rate limiter state to %s", path)
	return nil
}

// LoadState restores a snapshot. Any failure leaves the current state
// untouched and is returned for the caller to log.
func (g *Governor) LoadState(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			g.log.Debug("No saved rate limiter state found at %s", path)
			return nil
		}
		return fmt.Errorf("load rate limiter state: %w", err)
	}

	var st domain.QuotaState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("load rate limiter state: %w", err)
	}

	g.mu.Lock()
	g.state = st
	g.mu.Unlock()

	g.log.Debug("Loaded rate limiter state from %s", path)
	return nil
}

func writeState(path string, st domain.QuotaState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0644)
}

func (g *Governor) intHeader(h http.Header, name string) (int, bool) {
	raw := strings.TrimSpace(h.Get(g.prefix + name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		g.log.Warn("Ignoring malformed %s%s header: %q", g.prefix, name, raw)
		return 0, false
	}
	return v, true
}

func (g *Governor) timeHeader(h http.Header, name string) (time.Time, bool) {
	raw := strings.TrimSpace(h.Get(g.prefix + name))
	if raw == "" {
		return time.Time{}, false
	}
	t, err := ParseReset(raw)
	if err != nil {
		g.log.Warn("Ignoring malformed %s%s header: %q", g.prefix, name, raw)
		return time.Time{}, false
	}
	return t, true
}

var resetLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	time.RFC1123,
}

// ParseReset accepts unix seconds or one of the date layouts hosts use.
func ParseReset(raw string) (time.Time, error) {
	if sec, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(sec, 0), nil
	}
	for _, layout := range resetLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised reset time %q", raw)
}
