package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/gatehouse/internal/audit"
	"github.com/yourusername/gatehouse/internal/auth"
	"github.com/yourusername/gatehouse/internal/config"
	"github.com/yourusername/gatehouse/internal/logging"
	"github.com/yourusername/gatehouse/internal/session"
	"github.com/yourusername/gatehouse/internal/users"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	router, err := newRouterWith(t, func(*config.Config) {})
	require.NoError(t, err)
	return router
}

func newRouterWith(t *testing.T, mutate func(*config.Config)) (*gin.Engine, error) {
	t.Helper()
	cfg := &config.Config{
		GinMode:            gin.TestMode,
		AppVersion:         "test",
		SessionSecret:      "test-secret",
		SessionLifetime:    time.Hour,
		CORSAllowedOrigins: "http://localhost:5173",
	}
	mutate(cfg)
	logger := logging.New(logging.Config{Service: serviceName, Level: "error"})

	store := users.NewMemoryStore()
	manager := session.NewManager(session.NewMemoryStore(), store, session.Policy{})
	flow := auth.New(store, auth.NewBcryptHasher(bcrypt.MinCost), manager, auth.Options{
		Audit: audit.NewLogDispatcher(logger),
	})

	return newRouter(cfg, logger, flow)
}

func clientIPOf(t *testing.T, router *gin.Engine, remoteAddr, forwardedFor string) string {
	t.Helper()
	router.GET("/_test/ip", func(c *gin.Context) { c.String(http.StatusOK, c.ClientIP()) })

	req := httptest.NewRequest(http.MethodGet, "/_test/ip", nil)
	req.RemoteAddr = remoteAddr
	req.Header.Set("X-Forwarded-For", forwardedFor)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestForwardedForIgnoredWithoutTrustedProxies(t *testing.T) {
	router := newTestRouter(t)
	assert.Equal(t, "198.51.100.4", clientIPOf(t, router, "198.51.100.4:5555", "9.9.9.9"))
}

func TestForwardedForHonouredFromTrustedProxy(t *testing.T) {
	router, err := newRouterWith(t, func(c *config.Config) { c.TrustedProxies = "10.0.0.0/8" })
	require.NoError(t, err)

	assert.Equal(t, "9.9.9.9", clientIPOf(t, router, "10.1.2.3:5555", "9.9.9.9"))
}

func TestLoginLockoutIgnoresSpoofedForwardedFor(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	post := func(path, forwardedFor string, form url.Values) *http.Response {
		t.Helper()
		page, err := client.Get(srv.URL + "/")
		require.NoError(t, err)
		page.Body.Close()
		form.Set("_token", page.Header.Get("X-CSRF-Token"))

		req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(form.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Forwarded-For", forwardedFor)
		res, err := client.Do(req)
		require.NoError(t, err)
		res.Body.Close()
		return res
	}

	res := post("/registration", "1.1.1.1", url.Values{"name": {"Ann"}, "email": {"ann@x.com"}, "password": {"secret1"}})
	require.Equal(t, "/", res.Header.Get("Location"))

	for i := 0; i < 5; i++ {
		res = post("/login", fmt.Sprintf("1.1.1.%d", i), url.Values{"email": {"ann@x.com"}, "password": {"wrong"}})
		require.Equal(t, http.StatusFound, res.StatusCode)
	}

	res = post("/login", "9.9.9.9", url.Values{"email": {"ann@x.com"}, "password": {"secret1"}})
	assert.Equal(t, "/", res.Header.Get("Location"))
}

func TestNewRouterRejectsInvalidTrustedProxies(t *testing.T) {
	_, err := newRouterWith(t, func(c *config.Config) { c.TrustedProxies = "not-an-ip" })
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"status": "ok", "service": serviceName, "version": "test"}, body)
	assert.NotEmpty(t, w.Header().Get(logging.RequestIDHeader))
}

func TestLoginPageIssuesSessionCookie(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `action="/login"`)
	assert.NotEmpty(t, w.Header().Get("X-CSRF-Token"))

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, auth.SessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
}

func TestPostWithoutCSRFTokenIsRejected(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))

	assert.Equal(t, auth.StatusPageExpired, w.Code)
}

func TestOpenUserStoreRejectsUnknownDriver(t *testing.T) {
	_, err := openUserStore(t.Context(), &config.Config{DBDriver: "mysql"})
	assert.Error(t, err)
}

func TestOpenUserStoreMemory(t *testing.T) {
	store, err := openUserStore(t.Context(), &config.Config{DBDriver: config.DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &users.MemoryStore{}, store)
}
