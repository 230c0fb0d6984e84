package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Marketplace API
	MarketAPIURL string
	APITimeout   time.Duration
	APIRateLimit float64
	APIRateBurst int

	// Identity
	IdentityAPIKey      string
	IdentityEndpoint    string
	SecureTokenEndpoint string
	TokenRefreshSkew    time.Duration

	// Federated login (Google)
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleCallbackAddr    string
	FederatedLoginTimeout time.Duration

	// Bid cache
	BidRefreshTimeout time.Duration

	// Agent
	AgentPort         string
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// FederatedLoginEnabled はGoogleログインに必要な設定が揃っている場合にtrueを返す。
func (c *Config) FederatedLoginEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// LoadDotEnv は.envファイルの内容を環境変数に読み込む。
// 既に設定済みの環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := LoadDotEnv(getEnvString("DOTENV_PATH", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.MarketAPIURL = os.Getenv("MARKET_API_URL")
	if cfg.MarketAPIURL == "" {
		missing = append(missing, "MARKET_API_URL")
	}

	cfg.IdentityAPIKey = os.Getenv("IDENTITY_API_KEY")
	if cfg.IdentityAPIKey == "" {
		missing = append(missing, "IDENTITY_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.APITimeout = getEnvDuration("API_TIMEOUT", 10*time.Second)
	cfg.APIRateLimit = getEnvFloat("API_RATE_LIMIT", 5)
	cfg.APIRateBurst = getEnvInt("API_RATE_BURST", 10)
	cfg.IdentityEndpoint = getEnvString("IDENTITY_ENDPOINT", "https://identitytoolkit.googleapis.com/v1")
	cfg.SecureTokenEndpoint = getEnvString("SECURE_TOKEN_ENDPOINT", "https://securetoken.googleapis.com/v1")
	cfg.TokenRefreshSkew = getEnvDuration("TOKEN_REFRESH_SKEW", 5*time.Minute)
	cfg.GoogleClientID = getEnvString("GOOGLE_CLIENT_ID", "")
	cfg.GoogleClientSecret = getEnvString("GOOGLE_CLIENT_SECRET", "")
	cfg.GoogleCallbackAddr = getEnvString("GOOGLE_CALLBACK_ADDR", "127.0.0.1:0")
	cfg.FederatedLoginTimeout = getEnvDuration("FEDERATED_LOGIN_TIMEOUT", 3*time.Minute)
	cfg.BidRefreshTimeout = getEnvDuration("BID_REFRESH_TIMEOUT", 10*time.Second)
	cfg.AgentPort = getEnvString("AGENT_PORT", "7070")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return defaultVal
	}
	return f
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
