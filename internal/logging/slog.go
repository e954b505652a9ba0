// Package logging は slog ベースの構造化ログとリクエスト単位のロガー受け渡しを提供します。
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config はロガーの出力設定です。
type Config struct {
	Service string
	Version string
	Env     string // gin のモード名 (debug, release, test)
	Level   string // debug, info, warn, error
	Format  string // json, text
}

// New は設定に従った slog.Logger を作成し、デフォルトロガーにも設定します。
func New(cfg Config) *slog.Logger {
	logger := NewWithWriter(os.Stdout, cfg)
	slog.SetDefault(logger)
	return logger
}

// NewWithWriter は出力先を指定してロガーを作成します。
func NewWithWriter(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: cfg.Env == "debug",
		Level:     parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With(
		"service", cfg.Service,
		"version", cfg.Version,
		"env", cfg.Env,
	)
}

func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type ctxKey struct{}

// WithContext はロガーをコンテキストに格納します。
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext はコンテキストのロガーを返します。無い場合はデフォルトロガーです。
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
