package domain

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   TransferStatus
		expected bool
	}{
		{StatusPending, false},
		{StatusInProgress, false},
		{StatusPaused, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.status.IsTerminal(), "status %s", tt.status)
	}
}

func TestTransferStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to TransferStatus
		allowed  bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusPaused, true},
		{StatusInProgress, StatusPending, true},
		{StatusInProgress, StatusFailed, true},
		{StatusPaused, StatusPending, true},
		{StatusPending, StatusPaused, false},
		{StatusPending, StatusCompleted, false},
		{StatusPaused, StatusInProgress, false},
		{StatusCompleted, StatusPending, false},
		{StatusFailed, StatusPending, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestQueuedTransfer_ReadyAt(t *testing.T) {
	now := time.Now()

	item := &QueuedTransfer{Status: StatusPending}
	assert.True(t, item.ReadyAt(now))

	item.NextRetryAt = TimePtr(now.Add(time.Minute))
	assert.False(t, item.ReadyAt(now))
	assert.True(t, item.ReadyAt(now.Add(2*time.Minute)))

	item.Status = StatusPaused
	assert.False(t, item.ReadyAt(now.Add(2*time.Minute)))
}

func TestQueuedTransfer_CloneIsDeep(t *testing.T) {
	started := time.Now()
	item := &QueuedTransfer{
		ID:        "a",
		StartedAt: &started,
		Options:   TransferOptions{AuthHeaders: map[string]string{"apikey": "secret"}},
	}

	c := item.Clone()
	c.Options.AuthHeaders["apikey"] = "changed"
	*c.StartedAt = started.Add(time.Hour)

	assert.Equal(t, "secret", item.Options.AuthHeaders["apikey"])
	assert.True(t, item.StartedAt.Equal(started))
}

func TestParseHashAlgorithm(t *testing.T) {
	tests := []struct {
		in   string
		want HashAlgorithm
	}{
		{"", HashMD5},
		{"MD5", HashMD5},
		{"sha1", HashSHA1},
		{"SHA-1", HashSHA1},
		{"sha256", HashSHA256},
		{"SHA-256", HashSHA256},
	}
	for _, tt := range tests {
		got, err := ParseHashAlgorithm(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseHashAlgorithm("crc32")
	assert.ErrorIs(t, err, ErrUnsupportedHash)
}

func TestCalculateFileHash(t *testing.T) {
	path := t.TempDir() + "/hello.txt"
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	md5sum, err := CalculateFileHash(path, HashMD5)
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", md5sum)

	sha, err := CalculateFileHash(path, HashSHA256)
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sha)

	assert.True(t, HashesEqual("5D41402ABC4B2A76B9719D911017C592", md5sum))
}

func TestQuotaStateJSON(t *testing.T) {
	reset := time.Unix(1700000000, 0)
	in := QuotaState{
		DailyLimit: 100, DailyRemaining: 0, DailyReset: reset,
		HourlyLimit: 10, HourlyRemaining: 3, HourlyReset: reset.Add(-time.Hour),
	}

	data, err := in.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"daily_reset":1700000000`)

	var out QuotaState
	require.NoError(t, out.UnmarshalJSON(data))
	assert.Equal(t, in.DailyRemaining, out.DailyRemaining)
	assert.True(t, in.DailyReset.Equal(out.DailyReset))
	assert.True(t, in.HourlyReset.Equal(out.HourlyReset))

	var partial QuotaState
	require.NoError(t, partial.UnmarshalJSON([]byte(`{"daily_remaining": 7}`)))
	assert.Equal(t, 7, partial.DailyRemaining)
	assert.Equal(t, DefaultHourlyLimit, partial.HourlyRemaining)
	assert.True(t, partial.DailyReset.IsZero())
}
