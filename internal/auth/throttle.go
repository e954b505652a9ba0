package auth

import (
	"strings"
	"sync"
	"time"
)

// ThrottleConfig はログイン試行制限の設定です。
type ThrottleConfig struct {
	MaxAttempts int           // ウィンドウ内で許す失敗回数
	Window      time.Duration // 失敗回数を数える期間
	Lock        time.Duration // 上限到達後にロックする期間
}

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Throttle はキー（メールアドレスとIP）単位でログイン失敗を数え、上限でロックします。
type Throttle struct {
	cfg       ThrottleConfig
	lock      sync.Mutex
	attempts  map[string]*attemptState
	lastSweep time.Time
	now       func() time.Time
}

// NewThrottle は Throttle を作成します。ゼロ値の項目は 5回 / 15分 / 10分 になります。
func NewThrottle(cfg ThrottleConfig) *Throttle {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.Lock <= 0 {
		cfg.Lock = 10 * time.Minute
	}
	return &Throttle{
		cfg:      cfg,
		attempts: make(map[string]*attemptState),
		now:      time.Now,
	}
}

// Check はロック中なら残り時間を、そうでなければ 0 を返します。
func (t *Throttle) Check(key string) time.Duration {
	t.lock.Lock()
	defer t.lock.Unlock()

	state, ok := t.attempts[key]
	if !ok {
		return 0
	}
	now := t.now()
	if !now.Before(state.lockedUntil) {
		return 0
	}
	return state.lockedUntil.Sub(now)
}

// Fail は失敗を記録し、ロックまでの残り回数を返します。
func (t *Throttle) Fail(key string) int {
	t.lock.Lock()
	defer t.lock.Unlock()

	now := t.now()
	t.sweep(now)

	state, ok := t.attempts[key]
	if !ok || t.expired(state, now) || (!state.lockedUntil.IsZero() && !now.Before(state.lockedUntil)) {
		state = &attemptState{firstAttempt: now}
		t.attempts[key] = state
	}

	state.count++
	if state.count >= t.cfg.MaxAttempts {
		state.lockedUntil = now.Add(t.cfg.Lock)
		state.count = t.cfg.MaxAttempts
	}

	remaining := t.cfg.MaxAttempts - state.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// sweep はウィンドウもロックも過ぎた記録を捨てます。ウィンドウ1回分に1度だけ走ります。
func (t *Throttle) sweep(now time.Time) {
	if now.Sub(t.lastSweep) < t.cfg.Window {
		return
	}
	for k, state := range t.attempts {
		if t.expired(state, now) && !now.Before(state.lockedUntil) {
			delete(t.attempts, k)
		}
	}
	t.lastSweep = now
}

func (t *Throttle) expired(state *attemptState, now time.Time) bool {
	return now.Sub(state.firstAttempt) > t.cfg.Window
}

// Reset はキーの失敗記録を消します。
func (t *Throttle) Reset(key string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	delete(t.attempts, key)
}

func throttleKey(email, ip string) string {
	return strings.ToLower(email) + "|" + ip
}
