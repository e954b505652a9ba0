package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/gatehouse/internal/audit"
	"github.com/yourusername/gatehouse/internal/users"
	"github.com/yourusername/gatehouse/internal/views"
)

const (
	minPasswordLength = 6
	maxPasswordBytes  = 72
	activityLimit     = 5
)

// ShowLogin は GET / のハンドラーです。
func (f *Flow) ShowLogin(c *gin.Context) {
	f.render(c, http.StatusOK, views.Login, views.NewPage("Login"))
}

// ShowRegistration は GET /registration のハンドラーです。
func (f *Flow) ShowRegistration(c *gin.Context) {
	f.render(c, http.StatusOK, views.Registration, views.NewPage("Register"))
}

// Login は POST /login のハンドラーです。
// 未登録のメールアドレスとパスワード違いは同じメッセージで "/" に戻します。
func (f *Flow) Login(c *gin.Context) {
	ctx := c.Request.Context()
	email := normalizeEmail(c.PostForm("email"))
	password := c.PostForm("password")
	old := map[string]string{"email": email}

	verrs, err := Validate(ctx, map[string]string{"email": email, "password": password},
		Field{Name: "email", Rules: []Rule{Required()}},
		Field{Name: "password", Rules: []Rule{Required()}},
	)
	if err != nil {
		f.fail(c, err)
		return
	}
	if len(verrs) > 0 {
		f.redirect(c, "/", &flashData{Errors: verrs.Map(), Old: old})
		return
	}

	key := throttleKey(email, c.ClientIP())
	if wait := f.throttle.Check(key); wait > 0 {
		f.dispatch(c, audit.Event{Type: audit.EventLoginLocked, Email: email})
		f.redirect(c, "/", &flashData{Errors: messageError(lockedMessage(wait.Seconds())), Old: old})
		return
	}

	user, err := f.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, users.ErrNotFound) {
		f.fail(c, err)
		return
	}

	var ok bool
	if user != nil {
		ok = f.hasher.Verify(password, user.PasswordHash)
	} else if f.dummyHash != "" {
		f.hasher.Verify(password, f.dummyHash)
	}

	if !ok {
		f.throttle.Fail(key)
		event := audit.Event{Type: audit.EventLoginFailed, Email: email}
		if user != nil {
			event.UserID = user.ID
		}
		f.dispatch(c, event)
		f.redirect(c, "/", &flashData{Errors: messageError(msgInvalidCredentials), Old: old})
		return
	}
	f.throttle.Reset(key)

	session := sessions.Default(c)
	if prev, _ := session.Get(sessionKeyToken).(string); prev != "" {
		if err := f.sessions.Destroy(ctx, prev); err != nil {
			logger(c).WarnContext(ctx, "failed to destroy previous session", "error", err)
		}
	}

	token, err := f.sessions.Start(ctx, user.ID)
	if err != nil {
		f.fail(c, err)
		return
	}
	session.Set(sessionKeyToken, token)
	session.Set(sessionKeyUserID, user.ID)
	if _, err := rotateCSRFToken(session); err != nil {
		f.abandon(c, token, err)
		return
	}
	target := popIntended(session)
	setFlash(session, &flashData{Success: msgLoginSuccess})
	if err := session.Save(); err != nil {
		f.abandon(c, token, err)
		return
	}

	f.dispatch(c, audit.Event{Type: audit.EventLoginSucceeded, UserID: user.ID, Email: user.Email})
	logger(c).InfoContext(ctx, "user logged in", "user_id", user.ID)

	c.Redirect(http.StatusFound, target)
}

// abandon はクッキーに載せられなかったセッションを破棄してから 500 を返します。
func (f *Flow) abandon(c *gin.Context, token string, err error) {
	ctx := c.Request.Context()
	if derr := f.sessions.Destroy(ctx, token); derr != nil {
		logger(c).WarnContext(ctx, "failed to destroy abandoned session", "error", derr)
	}
	f.fail(c, err)
}

// Register は POST /registration のハンドラーです。
// 入力に問題があれば項目ごとのエラーと入力値（パスワードを除く）を添えて登録画面に戻します。
func (f *Flow) Register(c *gin.Context) {
	ctx := c.Request.Context()
	name := strings.TrimSpace(c.PostForm("name"))
	email := normalizeEmail(c.PostForm("email"))
	password := c.PostForm("password")
	old := map[string]string{"name": name, "email": email}

	verrs, err := Validate(ctx, map[string]string{"name": name, "email": email, "password": password},
		Field{Name: "name", Rules: []Rule{Required()}},
		Field{Name: "email", Rules: []Rule{Required(), Email(), Unique(f.emailExists)}},
		Field{Name: "password", Rules: []Rule{Required(), MinLength(minPasswordLength), MaxBytes(maxPasswordBytes)}},
	)
	if err != nil {
		f.fail(c, err)
		return
	}
	if len(verrs) > 0 {
		f.redirect(c, "/registration", &flashData{Errors: verrs.Map(), Old: old})
		return
	}

	hash, err := f.hasher.Hash(password)
	if err != nil {
		f.fail(c, err)
		return
	}

	user, err := f.users.Create(ctx, name, email, hash)
	if errors.Is(err, users.ErrEmailTaken) {
		// 検証後に同じメールで別の登録が先に完了した場合
		taken := ValidationErrors{{Field: "email", Message: takenMessage("email")}}
		f.redirect(c, "/registration", &flashData{Errors: taken.Map(), Old: old})
		return
	}
	if err != nil {
		f.fail(c, err)
		return
	}

	f.dispatch(c, audit.Event{Type: audit.EventRegistered, UserID: user.ID, Email: user.Email})
	logger(c).InfoContext(ctx, "user registered", "user_id", user.ID)

	f.redirect(c, "/", &flashData{Success: msgRegistrationSuccess})
}

// Dashboard は GET /dashboard のハンドラーです。RequireLogin の後ろに置きます。
func (f *Flow) Dashboard(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		f.redirect(c, "/", &flashData{Errors: messageError(msgAccessDenied)})
		return
	}

	page := views.NewPage("Dashboard")
	page.User = user
	if f.activity != nil {
		ctx := c.Request.Context()
		events, err := f.activity.Recent(ctx, user.ID, activityLimit)
		if err != nil {
			logger(c).WarnContext(ctx, "failed to load recent activity", "error", err)
		}
		page.Activity = events
	}
	f.render(c, http.StatusOK, views.Dashboard, page)
}

// Logout は /logout のハンドラーです。未ログインで呼んでも "/" に戻すだけです。
func (f *Flow) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	session := sessions.Default(c)

	if token, _ := session.Get(sessionKeyToken).(string); token != "" {
		// 保存先の障害でもブラウザ側は必ず未ログインに戻す
		if err := f.sessions.Destroy(ctx, token); err != nil {
			logger(c).ErrorContext(ctx, "failed to destroy session on logout", "error", err)
		}
		userID, _ := session.Get(sessionKeyUserID).(string)
		f.dispatch(c, audit.Event{Type: audit.EventLoggedOut, UserID: userID})
	}

	session.Clear()
	f.redirect(c, "/", nil)
}

func (f *Flow) emailExists(ctx context.Context, email string) (bool, error) {
	_, err := f.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, users.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// render はフラッシュを取り出してページに反映し、CSRF トークンを添えて描画します。
func (f *Flow) render(c *gin.Context, status int, name string, page views.Page) {
	session := sessions.Default(c)
	flash := popFlash(session)
	if flash.Success != "" {
		page.Success = flash.Success
	}
	for k, v := range flash.Errors {
		page.Errors[k] = v
	}
	for k, v := range flash.Old {
		page.Old[k] = v
	}

	token, err := ensureCSRFToken(session)
	if err != nil {
		f.fail(c, err)
		return
	}
	if err := session.Save(); err != nil {
		f.fail(c, err)
		return
	}
	page.CSRFToken = token

	c.Header(csrfHeader, token)
	c.HTML(status, name, page)
}

// redirect はフラッシュを置いてセッションを保存し、302 で遷移させます。
func (f *Flow) redirect(c *gin.Context, location string, flash *flashData) {
	session := sessions.Default(c)
	setFlash(session, flash)
	if err := session.Save(); err != nil {
		f.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, location)
}

// fail は基盤側の障害を記録し、500 のエラーページを返します。
func (f *Flow) fail(c *gin.Context, err error) {
	logger(c).ErrorContext(c.Request.Context(), "auth flow failed", "error", err)
	c.HTML(http.StatusInternalServerError, views.Error, views.NewPage("Server Error"))
}

func lockedMessage(seconds float64) string {
	return fmt.Sprintf("Too many login attempts. Please try again in %d seconds.", int(math.Ceil(seconds)))
}
