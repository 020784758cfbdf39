package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = Policy{MaxAttempts: 3, Window: 15 * time.Minute, Lock: 10 * time.Minute}

func TestPolicyEnabled(t *testing.T) {
	assert.False(t, Policy{}.Enabled())
	assert.True(t, testPolicy.Enabled())
}

func TestMemoryLocksAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(testPolicy)
	m.now = func() time.Time { return now }

	remaining, err := m.RecordFailure(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
	remaining, _ = m.RecordFailure(ctx, "10.0.0.1")
	assert.Equal(t, 1, remaining)

	wait, err := m.Locked(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Zero(t, wait)

	remaining, _ = m.RecordFailure(ctx, "10.0.0.1")
	assert.Zero(t, remaining)

	wait, _ = m.Locked(ctx, "10.0.0.1")
	assert.Equal(t, 10*time.Minute, wait)

	// 別のキーには影響しない
	wait, _ = m.Locked(ctx, "10.0.0.2")
	assert.Zero(t, wait)

	now = now.Add(10*time.Minute + time.Second)
	wait, _ = m.Locked(ctx, "10.0.0.1")
	assert.Zero(t, wait)

	// ロック解除後は数え直し
	remaining, _ = m.RecordFailure(ctx, "10.0.0.1")
	assert.Equal(t, 2, remaining)
}

func TestMemoryWindowExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(testPolicy)
	m.now = func() time.Time { return now }

	_, _ = m.RecordFailure(ctx, "ip")
	_, _ = m.RecordFailure(ctx, "ip")

	now = now.Add(16 * time.Minute)
	remaining, _ := m.RecordFailure(ctx, "ip")
	assert.Equal(t, 2, remaining)
}

func TestMemoryReset(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(testPolicy)

	for i := 0; i < testPolicy.MaxAttempts; i++ {
		_, _ = m.RecordFailure(ctx, "ip")
	}
	wait, _ := m.Locked(ctx, "ip")
	require.Positive(t, wait)

	require.NoError(t, m.Reset(ctx, "ip"))
	wait, _ = m.Locked(ctx, "ip")
	assert.Zero(t, wait)
}

// TestRedis は TEST_REDIS_URL が設定されている場合のみ実行します。
func TestRedis(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL is not set")
	}

	ctx := context.Background()
	r, err := NewRedisFromURL(url, testPolicy)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	require.NoError(t, r.Ping(ctx))

	key := "test-" + uuid.NewString()
	t.Cleanup(func() { _ = r.Reset(ctx, key) })

	remaining, err := r.RecordFailure(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
	_, _ = r.RecordFailure(ctx, key)
	remaining, err = r.RecordFailure(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	wait, err := r.Locked(ctx, key)
	require.NoError(t, err)
	assert.Greater(t, wait, 9*time.Minute)

	require.NoError(t, r.Reset(ctx, key))
	wait, err = r.Locked(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestNewRedisFromURLInvalid(t *testing.T) {
	_, err := NewRedisFromURL("not-a-url", testPolicy)
	assert.Error(t, err)
}
