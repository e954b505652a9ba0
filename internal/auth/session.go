package auth

import (
	"encoding/json"
	"strings"

	"github.com/gin-contrib/sessions"
)

// SessionCookieName はブラウザセッションのクッキー名です。
const SessionCookieName = "gatehouse_session"

const (
	sessionKeyToken    = "auth_token"
	sessionKeyUserID   = "auth_user"
	sessionKeyCSRF     = "csrf_token"
	sessionKeyIntended = "url.intended"
	sessionKeyFlash    = "_flash"

	csrfHeader = "X-CSRF-Token"
	csrfField  = "_token"

	defaultRedirect = "/dashboard"
)

// ユーザーに表示するメッセージです。
const (
	msgLoginSuccess        = "You have Successfully logged in"
	msgInvalidCredentials  = "Oppes! You have entered invalid credentials"
	msgRegistrationSuccess = "Great! You have Successfully loggedin"
	msgAccessDenied        = "Opps! You do not have access"
)

// flashData は次の1リクエストだけ表示するデータです。
type flashData struct {
	Success string              `json:"success,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
	Old     map[string]string   `json:"old,omitempty"`
}

func messageError(msg string) map[string][]string {
	return map[string][]string{"message": {msg}}
}

// setFlash はフラッシュを JSON 文字列としてセッションに置きます。保存は呼び出し側で行います。
func setFlash(s sessions.Session, data *flashData) {
	if data == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	s.Set(sessionKeyFlash, string(raw))
}

// popFlash はフラッシュを取り出して削除します。無ければゼロ値を返します。
func popFlash(s sessions.Session) flashData {
	var data flashData
	raw, ok := s.Get(sessionKeyFlash).(string)
	if !ok {
		return data
	}
	s.Delete(sessionKeyFlash)
	_ = json.Unmarshal([]byte(raw), &data)
	return data
}

// ensureCSRFToken はセッションの CSRF トークンを返します。無ければ発行します。
func ensureCSRFToken(s sessions.Session) (string, error) {
	if token, ok := s.Get(sessionKeyCSRF).(string); ok && token != "" {
		return token, nil
	}
	return rotateCSRFToken(s)
}

func rotateCSRFToken(s sessions.Session) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	s.Set(sessionKeyCSRF, token)
	return token, nil
}

// popIntended はログイン前に覚えたURLを取り出します。
func popIntended(s sessions.Session) string {
	raw, _ := s.Get(sessionKeyIntended).(string)
	s.Delete(sessionKeyIntended)
	return safeRedirect(raw)
}

// safeRedirect は同一オリジン内のパスだけを許し、それ以外は既定の遷移先を返します。
func safeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") {
		return defaultRedirect
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return defaultRedirect
	}
	return target
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
