package logging

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNewWithWriterLevelsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Service: "svc", Version: "1.2.3", Env: "test", Level: "warn"})

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered at warn level:\n%s", out)
	}
	for _, want := range []string{"level=WARN", "msg=shown", "k=v", "service=svc", "version=1.2.3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected default logger")
	}
}

func TestMiddlewareAttachesRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	base := NewWithWriter(&buf, Config{Service: "svc", Format: "text"})

	router := gin.New()
	router.Use(Middleware(base))
	router.GET("/ping", func(c *gin.Context) {
		FromContext(c.Request.Context()).Info("inside handler")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Header().Get(RequestIDHeader) != "req-42" {
		t.Fatalf("request id should be echoed, got %q", rec.Header().Get(RequestIDHeader))
	}
	out := buf.String()
	if strings.Count(out, "req_id=req-42") != 2 {
		t.Fatalf("expected handler and access log lines with req_id:\n%s", out)
	}
	if !strings.Contains(out, "status=204") {
		t.Fatalf("expected status in access log:\n%s", out)
	}
}

func TestMiddlewareGeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(NewWithWriter(&bytes.Buffer{}, Config{})))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected generated request id")
	}
}
