package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/modfetch/internal/domain"
)

func sampleQueue() []*domain.QueuedTransfer {
	queued := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	return []*domain.QueuedTransfer{
		{
			ID:          "b",
			URL:         "https://files.example.com/b.zip",
			OutputPath:  "/mods/b.zip",
			FileName:    "b.zip",
			Status:      domain.StatusPending,
			Priority:    5,
			QueuedAt:    queued,
			MaxRetries:  3,
			RetryCount:  1,
			NextRetryAt: domain.TimePtr(queued.Add(4 * time.Second)),
			LastError:   "server error",
			Options: domain.TransferOptions{
				AllowResume:     true,
				ExpectedHash:    "5d41402abc4b2a76b9719d911017c592",
				HashAlgorithm:   domain.HashMD5,
				AuthHeaders:     map[string]string{"apikey": "k"},
				RefreshEndpoint: "https://api.example.com/link.json",
			},
		},
		{
			ID:              "a",
			URL:             "https://files.example.com/a.zip",
			OutputPath:      "/mods/a.zip",
			FileName:        "a.zip",
			TotalBytes:      2048,
			BytesDownloaded: 2048,
			Status:          domain.StatusCompleted,
			Priority:        1,
			QueuedAt:        queued.Add(time.Minute),
			StartedAt:       domain.TimePtr(queued.Add(2 * time.Minute)),
			CompletedAt:     domain.TimePtr(queued.Add(3 * time.Minute)),
			MaxRetries:      3,
			Speed:           1024.5,
		},
	}
}

func assertSameQueue(t *testing.T, want, got []*domain.QueuedTransfer) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		w, g := want[i], got[i]
		assert.Equal(t, w.ID, g.ID)
		assert.Equal(t, w.URL, g.URL)
		assert.Equal(t, w.OutputPath, g.OutputPath)
		assert.Equal(t, w.FileName, g.FileName)
		assert.Equal(t, w.Status, g.Status)
		assert.Equal(t, w.Priority, g.Priority)
		assert.Equal(t, w.TotalBytes, g.TotalBytes)
		assert.Equal(t, w.BytesDownloaded, g.BytesDownloaded)
		assert.Equal(t, w.RetryCount, g.RetryCount)
		assert.Equal(t, w.MaxRetries, g.MaxRetries)
		assert.Equal(t, w.LastError, g.LastError)
		assert.Equal(t, w.Speed, g.Speed)
		assert.Equal(t, w.Options, g.Options)
		assert.True(t, w.QueuedAt.Equal(g.QueuedAt), "queued_at %v != %v", w.QueuedAt, g.QueuedAt)
		assertSameTime(t, w.StartedAt, g.StartedAt)
		assertSameTime(t, w.CompletedAt, g.CompletedAt)
		assertSameTime(t, w.NextRetryAt, g.NextRetryAt)
	}
}

func assertSameTime(t *testing.T, want, got *time.Time) {
	t.Helper()
	if want == nil {
		assert.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	assert.True(t, want.Equal(*got), "%v != %v", *want, *got)
}

// exerciseStore runs the shared contract against any QueueStore.
func exerciseStore(t *testing.T, s QueueStore) {
	ctx := context.Background()

	items, err := s.LoadQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	want := sampleQueue()
	require.NoError(t, s.SaveQueue(ctx, want))

	got, err := s.LoadQueue(ctx)
	require.NoError(t, err)
	assertSameQueue(t, want, got)

	// A second save replaces the whole snapshot
	require.NoError(t, s.SaveQueue(ctx, want[1:]))
	got, err = s.LoadQueue(ctx)
	require.NoError(t, err)
	assertSameQueue(t, want[1:], got)

	require.NoError(t, s.SaveQueue(ctx, nil))
	got, err = s.LoadQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "queue.json")
	exerciseStore(t, NewFileStore(path))
}

func TestFileStore_FieldNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	s := NewFileStore(path)
	require.NoError(t, s.SaveQueue(context.Background(), sampleQueue()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{`"output_path"`, `"queued_at"`, `"retry_count"`, `"next_retry_at"`, `"allow_resume"`} {
		assert.Contains(t, string(data), key)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewFileStore(path).LoadQueue(context.Background())
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	exerciseStore(t, s)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveQueue(context.Background(), sampleQueue()))
	require.NoError(t, s.Close())

	// Migrations must be a no-op the second time
	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.LoadQueue(context.Background())
	require.NoError(t, err)
	assertSameQueue(t, sampleQueue(), got)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(context.Background(), DriverFile, filepath.Join(dir, "q.json"), "")
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(context.Background(), DriverSQLite, filepath.Join(dir, "q.db"), "")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(context.Background(), "mongo", "", "")
	assert.Error(t, err)
}
