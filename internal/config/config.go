// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// DB_DRIVER に指定できる値です。
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// 開発時のみ使うセッション署名鍵です。release モードでは使われません。
const devSessionSecret = "gatehouse-dev-secret-change-me"

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port       string // HTTPサーバーのポート番号
	GinMode    string // Ginの実行モード (debug, release, test)
	AppVersion string // ヘルスチェックとログに出すバージョン

	// セッション設定
	SessionSecret   string        // クッキー署名用の秘密鍵
	SessionLifetime time.Duration // ログインからの最大有効期間
	SessionIdle     time.Duration // 無操作でセッションを失効させるまでの時間
	SessionRedisURL string        // サーバーセッション保存用Redis（空ならメモリ）

	// データベース設定
	DBDriver string // sqlite, postgres, memory
	DBDSN    string // ドライバーごとの接続文字列

	// パスワード設定
	BcryptCost int

	// ログイン試行制限
	LoginMaxAttempts int
	LoginWindow      time.Duration
	LoginLock        time.Duration

	// POST系エンドポイントのIP単位レート制限
	RateLimitPerMinute int
	RateLimitBurst     int

	// 監査ログ設定
	AuditRedisURL string // Asynq用Redis接続URL（空ならログ出力のみ）
	AuditHistory  int    // ユーザーごとに保持するイベント数

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// X-Forwarded-For を信頼するプロキシ（カンマ区切りのIP/CIDR、空なら信頼しない）
	TrustedProxies string

	// ログ設定
	LogLevel  string
	LogFormat string
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		Port:       getEnv("PORT", "8080"),
		GinMode:    getEnv("GIN_MODE", "debug"),
		AppVersion: getEnv("APP_VERSION", "0.1.0"),

		SessionSecret:   getEnv("SESSION_SECRET", ""),
		SessionLifetime: time.Duration(getEnvAsInt("SESSION_LIFETIME_MINUTES", 120)) * time.Minute,
		SessionIdle:     time.Duration(getEnvAsInt("SESSION_IDLE_MINUTES", 30)) * time.Minute,
		SessionRedisURL: getEnv("SESSION_REDIS_URL", ""),

		DBDriver: strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBDSN:    getEnv("DB_DSN", "file:gatehouse.db"),

		BcryptCost: getEnvAsInt("BCRYPT_COST", bcrypt.DefaultCost),

		LoginMaxAttempts: getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginWindow:      time.Duration(getEnvAsInt("LOGIN_WINDOW_MINUTES", 15)) * time.Minute,
		LoginLock:        time.Duration(getEnvAsInt("LOGIN_LOCK_MINUTES", 10)) * time.Minute,

		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),

		AuditRedisURL: getEnv("AUDIT_REDIS_URL", ""),
		AuditHistory:  getEnvAsInt("AUDIT_HISTORY", 20),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		TrustedProxies:     getEnv("TRUSTED_PROXIES", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	// ローカル開発では署名鍵が無くても起動できるようにする
	if config.SessionSecret == "" {
		config.SessionSecret = devSessionSecret
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("DB_DRIVER must be one of sqlite, postgres, memory: got %q", c.DBDriver)
	}

	if c.DBDriver != DriverMemory && c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required for driver %s", c.DBDriver)
	}

	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if c.SessionLifetime <= 0 || c.SessionIdle <= 0 {
		return fmt.Errorf("SESSION_LIFETIME_MINUTES and SESSION_IDLE_MINUTES must be positive")
	}

	if len(c.AllowedOrigins()) == 0 {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS must list at least one origin")
	}

	// 本番環境では厳格にチェックする
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if len(c.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 bytes in release mode")
		}
		if c.DBDriver == DriverMemory {
			return fmt.Errorf("DB_DRIVER=memory is not allowed in release mode")
		}
	}

	return nil
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// TrustedProxyList は信頼するプロキシを配列で返します。未設定なら nil です。
func (c *Config) TrustedProxyList() []string {
	if proxies := splitList(c.TrustedProxies); len(proxies) > 0 {
		return proxies
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
