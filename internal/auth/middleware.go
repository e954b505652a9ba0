package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/gatehouse/internal/httpx"
	"github.com/yourusername/gatehouse/internal/users"
	"github.com/yourusername/gatehouse/internal/views"
)

// ContextUserKey は、ハンドラー間でログイン済みユーザーを共有するためのキーです。
const ContextUserKey = "auth.user"

// StatusPageExpired は CSRF トークン不一致時に返すステータスです。
const StatusPageExpired = 419

// RequireLogin はログイン済みでなければ "/" へリダイレクトするミドルウェアです。
// GET の場合は元のURLを覚えておき、ログイン後にそこへ戻します。
func (f *Flow) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(sessionKeyToken).(string)

		user, err := f.sessions.CurrentUser(c.Request.Context(), token)
		if err != nil {
			f.fail(c, err)
			c.Abort()
			return
		}

		if user == nil {
			session.Delete(sessionKeyToken)
			session.Delete(sessionKeyUserID)
			if c.Request.Method == http.MethodGet {
				session.Set(sessionKeyIntended, c.Request.URL.RequestURI())
			}
			f.redirect(c, "/", &flashData{Errors: messageError(msgAccessDenied)})
			c.Abort()
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// CurrentUser は RequireLogin が設定したユーザーを返します。
func CurrentUser(c *gin.Context) *users.User {
	if v, ok := c.Get(ContextUserKey); ok {
		if u, ok := v.(*users.User); ok {
			return u
		}
	}
	return nil
}

// VerifyCSRF は状態を変更するリクエストの CSRF トークンを検証するミドルウェアです。
// トークンはフォームの _token、または X-CSRF-Token ヘッダーで受け取ります。
func (f *Flow) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpx.IsSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		session := sessions.Default(c)
		expected, _ := session.Get(sessionKeyCSRF).(string)

		received := c.PostForm(csrfField)
		if received == "" {
			received = c.GetHeader(csrfHeader)
		}

		if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			logger(c).WarnContext(c.Request.Context(), "csrf token mismatch")
			c.HTML(StatusPageExpired, views.Error, views.NewPage("Page Expired"))
			c.Abort()
			return
		}

		c.Next()
	}
}
