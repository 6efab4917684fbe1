package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Source Directory
	// DirectoryURLが空の場合はモックデータのみで動作する。
	DirectoryURL     string
	DirectoryTimeout time.Duration

	// Workflow
	StageDelay time.Duration

	// Database（任意。設定時のみ実行履歴を記録する）
	DatabaseURL          string
	HistoryRetentionDays int

	// Session
	SessionMaxIdle time.Duration

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitFetch   int

	// Download
	DownloadDir string

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// HistoryEnabled は実行履歴の記録が有効かどうかを返す。
func (c *Config) HistoryEnabled() bool {
	return c.DatabaseURL != ""
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.DirectoryURL = strings.TrimRight(getEnvString("DIRECTORY_URL", ""), "/")
	if cfg.DirectoryURL != "" &&
		!strings.HasPrefix(cfg.DirectoryURL, "http://") &&
		!strings.HasPrefix(cfg.DirectoryURL, "https://") {
		return nil, fmt.Errorf("DIRECTORY_URL must start with http:// or https://: %q", cfg.DirectoryURL)
	}

	// Optional fields with defaults
	cfg.DirectoryTimeout = getEnvDuration("DIRECTORY_TIMEOUT", 5*time.Minute)
	cfg.StageDelay = getEnvDuration("STAGE_DELAY", 500*time.Millisecond)
	cfg.DatabaseURL = getEnvString("DATABASE_URL", "")
	cfg.HistoryRetentionDays = getEnvInt("HISTORY_RETENTION_DAYS", 30)
	cfg.SessionMaxIdle = getEnvDuration("SESSION_MAX_IDLE", 2*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitFetch = getEnvInt("RATE_LIMIT_FETCH", 10)
	cfg.DownloadDir = getEnvString("DOWNLOAD_DIR", os.TempDir())
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.BaseURL)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
