// Package auth はログイン・登録・ダッシュボード保護・ログアウトの HTTP フローを提供します。
//
// Flow 自体は状態を持たず、ユーザー保存先（CredentialStore）、パスワードハッシュ
// （PasswordHasher）、ログイン状態の管理（SessionManager）に処理を委譲します。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/gatehouse/internal/audit"
	"github.com/yourusername/gatehouse/internal/logging"
	"github.com/yourusername/gatehouse/internal/users"
)

// CredentialStore はユーザーレコードの検索と作成を行います。
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
	Create(ctx context.Context, name, email, passwordHash string) (*users.User, error)
}

// PasswordHasher はパスワードの一方向ハッシュと照合を行います。
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// SessionManager はログイン状態をトークン単位で管理します。
// CurrentUser はセッションが無い場合 (nil, nil) を返します。
type SessionManager interface {
	Start(ctx context.Context, userID string) (string, error)
	CurrentUser(ctx context.Context, token string) (*users.User, error)
	Destroy(ctx context.Context, token string) error
}

// Options は Flow の任意設定です。
type Options struct {
	Throttle *Throttle        // nil の場合は既定値で作成
	Audit    audit.Dispatcher // nil の場合はイベントを捨てる
	Activity audit.Reader     // 設定するとダッシュボードに直近イベントを表示
}

// Flow は認証フローの HTTP ハンドラー群です。
type Flow struct {
	users    CredentialStore
	hasher   PasswordHasher
	sessions SessionManager
	throttle *Throttle
	audit    audit.Dispatcher
	activity audit.Reader

	// 未登録メールでも照合時間を揃えるためのハッシュ
	dummyHash string
}

// New は Flow を作成します。
func New(store CredentialStore, hasher PasswordHasher, sessions SessionManager, opts Options) *Flow {
	f := &Flow{
		users:    store,
		hasher:   hasher,
		sessions: sessions,
		throttle: opts.Throttle,
		audit:    opts.Audit,
		activity: opts.Activity,
	}
	if f.throttle == nil {
		f.throttle = NewThrottle(ThrottleConfig{})
	}
	if f.audit == nil {
		f.audit = nopDispatcher{}
	}

	if secret, err := generateToken(); err == nil {
		if hash, err := hasher.Hash(secret[:32]); err == nil {
			f.dummyHash = hash
		}
	}
	return f
}

// Routes は認証フローのルートを登録します。
func (f *Flow) Routes(r gin.IRouter) {
	r.GET("/", f.ShowLogin)
	r.GET("/registration", f.ShowRegistration)
	r.POST("/login", f.Login)
	r.POST("/registration", f.Register)
	r.GET("/dashboard", f.RequireLogin(), f.Dashboard)
	r.GET("/logout", f.Logout)
	r.POST("/logout", f.Logout)
}

func (f *Flow) dispatch(c *gin.Context, event audit.Event) {
	event.IP = c.ClientIP()
	event.UserAgent = c.Request.UserAgent()
	ctx := c.Request.Context()
	if err := f.audit.Dispatch(ctx, event); err != nil {
		logger(c).WarnContext(ctx, "failed to dispatch audit event", "type", string(event.Type), "error", err)
	}
}

func logger(c *gin.Context) *slog.Logger {
	return logging.FromContext(c.Request.Context())
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, audit.Event) error { return nil }

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
