package ratelimit

import (
	"context"
	"sync"
	"time"
)

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Memory はプロセス内に失敗回数を保持する Limiter です。
// 複数プロセスで共有する場合は Redis を使ってください。
type Memory struct {
	policy Policy
	now    func() time.Time

	lock     sync.Mutex
	attempts map[string]*attemptState
}

// NewMemory は Memory を作成します。
func NewMemory(policy Policy) *Memory {
	return &Memory{
		policy:   policy,
		now:      time.Now,
		attempts: make(map[string]*attemptState),
	}
}

func (m *Memory) Locked(_ context.Context, key string) (time.Duration, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[key]
	if !ok {
		return 0, nil
	}
	now := m.now()
	if now.Before(state.lockedUntil) {
		return state.lockedUntil.Sub(now), nil
	}
	if now.Sub(state.firstAttempt) > m.policy.Window {
		delete(m.attempts, key)
	}
	return 0, nil
}

func (m *Memory) RecordFailure(_ context.Context, key string) (int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	state, ok := m.attempts[key]
	if !ok || now.Sub(state.firstAttempt) > m.policy.Window {
		state = &attemptState{firstAttempt: now}
		m.attempts[key] = state
	}

	state.count++
	if state.count >= m.policy.MaxAttempts {
		// ロック解除後は新しいウィンドウで数え直す
		state.lockedUntil = now.Add(m.policy.Lock)
		state.firstAttempt = state.lockedUntil
		state.count = 0
		return 0, nil
	}
	return m.policy.MaxAttempts - state.count, nil
}

func (m *Memory) Reset(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, key)
	return nil
}

var _ Limiter = (*Memory)(nil)
