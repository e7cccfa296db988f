package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/modfetch/internal/api/controllers"
	"github.com/datallboy/modfetch/internal/app"
	"github.com/datallboy/modfetch/internal/domain"
	"github.com/datallboy/modfetch/internal/event"
	"github.com/datallboy/modfetch/internal/infra/config"
	"github.com/datallboy/modfetch/internal/infra/logger"
	"github.com/datallboy/modfetch/internal/queue"
	"github.com/datallboy/modfetch/internal/ratelimit"
	"github.com/datallboy/modfetch/internal/store"
)

type idleTransferer struct{}

func (idleTransferer) Transfer(ctx context.Context, req domain.TransferRequest) *domain.TransferResult {
	return &domain.TransferResult{Success: true}
}

func newTestApp(t *testing.T) *app.Context {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{Download: config.DownloadConfig{OutDir: dir}}
	log := logger.Discard()

	a := app.NewContext(cfg, log)
	a.Governor = ratelimit.New(log)
	a.Bus = event.NewInMemoryBus()
	a.Store = store.NewFileStore(filepath.Join(dir, "queue.json"))

	q, err := queue.New(context.Background(), a.Store, idleTransferer{}, a.Bus, log)
	require.NoError(t, err)
	a.Queue = q
	return a
}

func serve(t *testing.T, a *app.Context, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := NewServer(a)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestQueueRoutes(t *testing.T) {
	a := newTestApp(t)

	rec := serve(t, a, http.MethodPost, "/api/queue", `{"url":"https://cdn.example.com/files/SkyUI_5_2.7z?token=x","priority":2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created controllers.EnqueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = serve(t, a, http.MethodGet, "/api/queue/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var item domain.QueuedTransfer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, domain.StatusPending, item.Status)
	assert.Equal(t, 2, item.Priority)
	assert.Equal(t, "SkyUI_5_2.7z", item.FileName)
	assert.Equal(t, filepath.Join(a.Config.Download.OutDir, "SkyUI_5_2.7z"), item.OutputPath)

	rec = serve(t, a, http.MethodGet, "/api/queue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []domain.QueuedTransfer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Len(t, items, 1)

	// Pausing something that isn't running is a conflict
	rec = serve(t, a, http.MethodPost, "/api/queue/"+created.ID+"/pause", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(t, a, http.MethodDelete, "/api/queue/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(t, a, http.MethodGet, "/api/queue/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnqueueRoute_Invalid(t *testing.T) {
	a := newTestApp(t)

	rec := serve(t, a, http.MethodPost, "/api/queue", `{"priority":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, a, http.MethodPost, "/api/queue", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearRoute(t *testing.T) {
	a := newTestApp(t)
	_, err := a.Queue.Enqueue(domain.QueuedTransfer{URL: "https://x/a", OutputPath: "/mods/a"})
	require.NoError(t, err)

	rec := serve(t, a, http.MethodDelete, "/api/queue", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, a.Queue.List())
}

func TestQuotaRoute(t *testing.T) {
	a := newTestApp(t)
	h := http.Header{}
	h.Set("X-RL-Daily-Remaining", "12")
	h.Set("X-RL-Hourly-Remaining", "0")
	a.Governor.UpdateFromHeaders(h)

	rec := serve(t, a, http.MethodGet, "/api/quota", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.EqualValues(t, 12, raw["daily_remaining"])
	assert.EqualValues(t, 0, raw["hourly_remaining"])
}

func TestEventsRoute(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(NewServer(a))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	id, err := a.Queue.Enqueue(domain.QueuedTransfer{URL: "https://x/a", OutputPath: "/mods/a"})
	require.NoError(t, err)

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}

	require.Len(t, lines, 2)
	assert.Equal(t, "event: transfer.status", lines[0])
	assert.Contains(t, lines[1], `"id":"`+id+`"`)
}

func TestHTTPServerShutdownEndsEventStreams(t *testing.T) {
	a := newTestApp(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := NewHTTPServer(ln.Addr().String(), a)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Less(t, time.Since(start), time.Second)

	// The stream is closed rather than left hanging
	_, err = io.ReadAll(resp.Body)
	assert.NoError(t, err)

	assert.True(t, errors.Is(<-served, http.ErrServerClosed))
}

func TestClient(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(NewServer(a))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	c := NewClient(srv.URL+"/", logger.Discard())

	id, err := c.Enqueue(ctx, controllers.EnqueueRequest{URL: "https://x/mod.zip", OutputPath: "/mods/mod.zip", Priority: 1})
	require.NoError(t, err)

	items, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)

	item, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "mod.zip", item.FileName)

	assert.ErrorIs(t, c.Resume(ctx, id), domain.ErrInvalidTransition)
	assert.ErrorIs(t, c.Pause(ctx, "missing"), domain.ErrNotFound)

	quota, err := c.Quota(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20000, quota.DailyLimit)

	require.NoError(t, c.Remove(ctx, id))
	_, err = c.Get(ctx, id)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	require.NoError(t, c.Clear(ctx))
}
