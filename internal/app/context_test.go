package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/modfetch/internal/domain"
	"github.com/datallboy/modfetch/internal/infra/config"
	"github.com/datallboy/modfetch/internal/infra/logger"
)

func testConfig(t *testing.T, driver string) *config.Config {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.json")
	if driver == "sqlite" {
		path = filepath.Join(dir, "queue.db")
	}

	return &config.Config{
		Download: config.DownloadConfig{OutDir: dir, MaxConcurrent: 2, ChunkSize: 1024, ProgressInterval: 10 * time.Millisecond},
		Queue:    config.QueueConfig{PollInterval: 10 * time.Millisecond, BackoffBase: time.Millisecond, MaxRetries: 2},
		Store:    config.StoreConfig{Driver: driver, Path: path},
		Quota:    config.QuotaConfig{StatePath: filepath.Join(dir, "quota.json"), HeaderPrefix: "X-RL-", FallbackWait: time.Second},
	}
}

func TestBuild(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			cfg := testConfig(t, driver)

			a, err := Build(context.Background(), cfg, logger.Discard())
			require.NoError(t, err)

			assert.NotNil(t, a.Governor)
			assert.NotNil(t, a.Resolver)
			assert.Equal(t, 2, a.Engine.MaxConcurrent())

			id, err := a.Queue.Enqueue(domain.QueuedTransfer{URL: "https://x/a", OutputPath: filepath.Join(cfg.Download.OutDir, "a.zip")})
			require.NoError(t, err)
			require.NoError(t, a.Close())

			// A rebuilt context sees the persisted queue and quota state
			b, err := Build(context.Background(), cfg, logger.Discard())
			require.NoError(t, err)
			defer b.Close()

			item, err := b.Queue.Get(id)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusPending, item.Status)
			assert.FileExists(t, cfg.Quota.StatePath)
		})
	}
}

func TestBuild_UnknownStore(t *testing.T) {
	cfg := testConfig(t, "file")
	cfg.Store.Driver = "mongo"

	_, err := Build(context.Background(), cfg, logger.Discard())
	assert.Error(t, err)
}
