// internal/services/usage_limiter.go
package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	apperrors "github.com/Corphon/SceneForge/internal/errors"
	"github.com/Corphon/SceneForge/internal/utils"
)

// UsageLimiter 包装每一次生成调用，遇到配额错误时置位 limitReached。
// The flag is the only state; it is cleared only by Reset.
type UsageLimiter struct {
	limitReached atomic.Bool
	guarded      atomic.Int64
	hits         atomic.Int64

	mu      sync.RWMutex
	onLimit func(err error)
}

func NewUsageLimiter() *UsageLimiter {
	return &UsageLimiter{}
}

// OnLimit registers a callback run each time a guarded call hits the limit.
func (l *UsageLimiter) OnLimit(fn func(err error)) {
	l.mu.Lock()
	l.onLimit = fn
	l.mu.Unlock()
}

// LimitReached 是否已触发配额限制
func (l *UsageLimiter) LimitReached() bool {
	return l.limitReached.Load()
}

// Reset 用户确认（等待或升级）后清除标志
func (l *UsageLimiter) Reset() {
	l.limitReached.Store(false)
}

// UsageStatus 配额状态快照
type UsageStatus struct {
	LimitReached bool  `json:"limit_reached"`
	GuardedCalls int64 `json:"guarded_calls"`
	LimitHits    int64 `json:"limit_hits"`
}

// Status 返回当前状态
func (l *UsageLimiter) Status() UsageStatus {
	return UsageStatus{
		LimitReached: l.limitReached.Load(),
		GuardedCalls: l.guarded.Load(),
		LimitHits:    l.hits.Load(),
	}
}

func (l *UsageLimiter) record(err error) {
	l.guarded.Add(1)
	if err == nil || !errors.Is(err, apperrors.ErrRateLimit) {
		return
	}

	l.hits.Add(1)
	l.limitReached.Store(true)
	utils.GetLogger().Warn("usage limit reached", map[string]interface{}{"error": err})

	l.mu.RLock()
	fn := l.onLimit
	l.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Guard runs op. A rate-limit error sets the limiter flag and is returned
// unchanged so the caller never mistakes it for success; other errors pass
// through untouched.
func Guard[T any](ctx context.Context, l *UsageLimiter, op func(ctx context.Context) (T, error)) (T, error) {
	result, err := op(ctx)
	if l != nil {
		l.record(err)
	}
	return result, err
}
