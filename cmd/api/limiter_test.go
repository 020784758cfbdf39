package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/wiki-gate/internal/config"
	"github.com/yourusername/wiki-gate/internal/ratelimit"
)

func TestSetupLimiter(t *testing.T) {
	cfg := &config.Config{LoginWindow: 15 * time.Minute, LoginLock: 10 * time.Minute}

	limiter, err := setupLimiter(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, limiter, "disabled by default")

	cfg.LoginMaxAttempts = 5
	limiter, err = setupLimiter(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &ratelimit.Memory{}, limiter)

	cfg.RedisURL = "not-a-url"
	_, err = setupLimiter(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestSetupMetrics(t *testing.T) {
	recorder, gatherer := setupMetrics(&config.Config{})
	assert.NotNil(t, recorder)
	assert.Nil(t, gatherer)

	recorder, gatherer = setupMetrics(&config.Config{MetricsEnabled: true})
	assert.NotNil(t, recorder)
	require.NotNil(t, gatherer)
	families, err := gatherer.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
