package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/gatehouse/internal/users"
)

// ErrInvalidToken は空のトークンが渡された場合に返されます。
var ErrInvalidToken = errors.New("invalid session token")

// UserFinder は ID からユーザーを引ける保存先です。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
}

// Policy はセッションの失効ポリシーです。
type Policy struct {
	Lifetime time.Duration // ログインからの最大有効期間
	Idle     time.Duration // 無操作での失効時間
}

// Manager はトークンの発行・解決・破棄を行います。
type Manager struct {
	store  Store
	users  UserFinder
	policy Policy
	now    func() time.Time
}

// NewManager は Manager を作成します。
func NewManager(store Store, finder UserFinder, policy Policy) *Manager {
	if policy.Lifetime <= 0 {
		policy.Lifetime = 2 * time.Hour
	}
	if policy.Idle <= 0 || policy.Idle > policy.Lifetime {
		policy.Idle = policy.Lifetime
	}
	return &Manager{
		store:  store,
		users:  finder,
		policy: policy,
		now:    time.Now,
	}
}

// Start は userID に紐づく新しいセッションを作成し、トークンを返します。
func (m *Manager) Start(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("userID is required")
	}
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	now := m.now().UTC()
	record := &Record{UserID: userID, IssuedAt: now, LastActivity: now}
	if err := m.store.Save(ctx, hashToken(token), record, m.policy.Idle); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	return token, nil
}

// CurrentUser はトークンに紐づくユーザーを返します。
// セッションが無い・期限切れ・ユーザーが消えている場合は (nil, nil) です。
func (m *Manager) CurrentUser(ctx context.Context, token string) (*users.User, error) {
	if token == "" {
		return nil, nil
	}
	key := hashToken(token)
	record, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if record == nil {
		return nil, nil
	}

	now := m.now().UTC()
	if now.Sub(record.IssuedAt) > m.policy.Lifetime || now.Sub(record.LastActivity) > m.policy.Idle {
		if err := m.store.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		return nil, nil
	}

	user, err := m.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			_ = m.store.Delete(ctx, key)
			return nil, nil
		}
		return nil, err
	}

	// 最終操作時刻を更新し、TTL は残りの最大有効期間を超えないようにする
	record.LastActivity = now
	ttl := m.policy.Idle
	if remaining := m.policy.Lifetime - now.Sub(record.IssuedAt); remaining < ttl {
		ttl = remaining
	}
	if err := m.store.Save(ctx, key, record, ttl); err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	return user, nil
}

// Destroy はセッションを破棄します。何度呼んでも安全です。
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	if err := m.store.Delete(ctx, hashToken(token)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
