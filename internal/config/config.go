package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Redis（検出キャッシュ）
	RedisURL string

	// Scanner
	ScannerAPIKey string

	// Auth
	AuthJWTSecret string

	// Presence
	DetectionTimeout time.Duration
	GracePeriod      time.Duration
	SweepInterval    time.Duration

	// Session
	SessionTTL           time.Duration
	SessionRetentionDays int

	// Detection cache
	DetectionCacheTTL time.Duration

	// Rate Limit
	RateLimitGeneral      int
	RateLimitRegistration int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// 期間系の環境変数は運用慣習に合わせて秒・分・日の整数で指定する。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}

	cfg.ScannerAPIKey = os.Getenv("SCANNER_API_KEY")
	if cfg.ScannerAPIKey == "" {
		missing = append(missing, "SCANNER_API_KEY")
	}

	cfg.AuthJWTSecret = os.Getenv("AUTH_JWT_SECRET")
	if cfg.AuthJWTSecret == "" {
		missing = append(missing, "AUTH_JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DetectionTimeout = time.Duration(getEnvInt("DETECTION_TIMEOUT_SECONDS", 30)) * time.Second
	cfg.GracePeriod = time.Duration(getEnvInt("GRACE_PERIOD_MINUTES", 15)) * time.Minute
	cfg.SessionTTL = time.Duration(getEnvInt("SESSION_TTL_MINUTES", 60)) * time.Minute
	cfg.SessionRetentionDays = getEnvInt("SESSION_RETENTION_DAYS", 90)
	cfg.DetectionCacheTTL = time.Duration(getEnvInt("DETECTION_CACHE_TTL_SECONDS", 300)) * time.Second
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitRegistration = getEnvInt("RATE_LIMIT_REGISTRATION", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")

	// スイープ間隔は未指定なら検出タイムアウトと同じ周期で回す
	sweepSeconds := getEnvInt("SWEEP_INTERVAL_SECONDS", 0)
	if sweepSeconds > 0 {
		cfg.SweepInterval = time.Duration(sweepSeconds) * time.Second
	} else {
		cfg.SweepInterval = cfg.DetectionTimeout
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は期間設定の整合性を検証する。
func (c *Config) validate() error {
	if c.DetectionTimeout <= 0 {
		return fmt.Errorf("DETECTION_TIMEOUT_SECONDS must be positive")
	}
	if c.GracePeriod <= c.DetectionTimeout {
		return fmt.Errorf("GRACE_PERIOD_MINUTES must be longer than DETECTION_TIMEOUT_SECONDS")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL_MINUTES must be positive")
	}
	if c.SessionRetentionDays <= 0 {
		return fmt.Errorf("SESSION_RETENTION_DAYS must be positive")
	}
	return nil
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
