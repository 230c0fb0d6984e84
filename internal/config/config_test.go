package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("DOTENV_PATH", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("MARKET_API_URL", "http://localhost:5000")
	t.Setenv("IDENTITY_API_KEY", "test-api-key")
}

func TestLoad_AllRequiredVarsSet_ReturnsConfig(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.MarketAPIURL != "http://localhost:5000" {
		t.Errorf("MarketAPIURL = %q, want %q", cfg.MarketAPIURL, "http://localhost:5000")
	}
	if cfg.IdentityAPIKey != "test-api-key" {
		t.Errorf("IdentityAPIKey = %q, want %q", cfg.IdentityAPIKey, "test-api-key")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// API defaults
	if cfg.APITimeout != 10*time.Second {
		t.Errorf("APITimeout = %v, want %v", cfg.APITimeout, 10*time.Second)
	}
	if cfg.APIRateLimit != 5 {
		t.Errorf("APIRateLimit = %v, want %v", cfg.APIRateLimit, 5)
	}
	if cfg.APIRateBurst != 10 {
		t.Errorf("APIRateBurst = %d, want %d", cfg.APIRateBurst, 10)
	}

	// Identity defaults
	if cfg.IdentityEndpoint != "https://identitytoolkit.googleapis.com/v1" {
		t.Errorf("IdentityEndpoint = %q", cfg.IdentityEndpoint)
	}
	if cfg.SecureTokenEndpoint != "https://securetoken.googleapis.com/v1" {
		t.Errorf("SecureTokenEndpoint = %q", cfg.SecureTokenEndpoint)
	}
	if cfg.TokenRefreshSkew != 5*time.Minute {
		t.Errorf("TokenRefreshSkew = %v, want %v", cfg.TokenRefreshSkew, 5*time.Minute)
	}

	// Federated login defaults
	if cfg.GoogleCallbackAddr != "127.0.0.1:0" {
		t.Errorf("GoogleCallbackAddr = %q, want %q", cfg.GoogleCallbackAddr, "127.0.0.1:0")
	}
	if cfg.FederatedLoginTimeout != 3*time.Minute {
		t.Errorf("FederatedLoginTimeout = %v, want %v", cfg.FederatedLoginTimeout, 3*time.Minute)
	}

	// Bid cache defaults
	if cfg.BidRefreshTimeout != 10*time.Second {
		t.Errorf("BidRefreshTimeout = %v, want %v", cfg.BidRefreshTimeout, 10*time.Second)
	}

	// Agent defaults
	if cfg.AgentPort != "7070" {
		t.Errorf("AgentPort = %q, want %q", cfg.AgentPort, "7070")
	}
	if cfg.CORSAllowedOrigin != "http://localhost:5173" {
		t.Errorf("CORSAllowedOrigin = %q, want %q", cfg.CORSAllowedOrigin, "http://localhost:5173")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnvVars(t)

	t.Setenv("API_TIMEOUT", "30s")
	t.Setenv("API_RATE_LIMIT", "2.5")
	t.Setenv("API_RATE_BURST", "4")
	t.Setenv("TOKEN_REFRESH_SKEW", "1m")
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("GOOGLE_CALLBACK_ADDR", "127.0.0.1:8765")
	t.Setenv("FEDERATED_LOGIN_TIMEOUT", "90s")
	t.Setenv("BID_REFRESH_TIMEOUT", "3s")
	t.Setenv("AGENT_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APITimeout != 30*time.Second {
		t.Errorf("APITimeout = %v, want %v", cfg.APITimeout, 30*time.Second)
	}
	if cfg.APIRateLimit != 2.5 {
		t.Errorf("APIRateLimit = %v, want %v", cfg.APIRateLimit, 2.5)
	}
	if cfg.APIRateBurst != 4 {
		t.Errorf("APIRateBurst = %d, want %d", cfg.APIRateBurst, 4)
	}
	if cfg.TokenRefreshSkew != time.Minute {
		t.Errorf("TokenRefreshSkew = %v, want %v", cfg.TokenRefreshSkew, time.Minute)
	}
	if !cfg.FederatedLoginEnabled() {
		t.Error("FederatedLoginEnabled() = false, want true")
	}
	if cfg.GoogleCallbackAddr != "127.0.0.1:8765" {
		t.Errorf("GoogleCallbackAddr = %q, want %q", cfg.GoogleCallbackAddr, "127.0.0.1:8765")
	}
	if cfg.FederatedLoginTimeout != 90*time.Second {
		t.Errorf("FederatedLoginTimeout = %v, want %v", cfg.FederatedLoginTimeout, 90*time.Second)
	}
	if cfg.BidRefreshTimeout != 3*time.Second {
		t.Errorf("BidRefreshTimeout = %v, want %v", cfg.BidRefreshTimeout, 3*time.Second)
	}
	if cfg.AgentPort != "9090" {
		t.Errorf("AgentPort = %q, want %q", cfg.AgentPort, "9090")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoad_InvalidValues_FallBackToDefaults(t *testing.T) {
	setRequiredEnvVars(t)

	t.Setenv("API_TIMEOUT", "soon")
	t.Setenv("API_RATE_LIMIT", "-1")
	t.Setenv("API_RATE_BURST", "many")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APITimeout != 10*time.Second {
		t.Errorf("APITimeout = %v, want %v", cfg.APITimeout, 10*time.Second)
	}
	if cfg.APIRateLimit != 5 {
		t.Errorf("APIRateLimit = %v, want %v", cfg.APIRateLimit, 5)
	}
	if cfg.APIRateBurst != 10 {
		t.Errorf("APIRateBurst = %d, want %d", cfg.APIRateBurst, 10)
	}
}

func TestLoad_FederatedLoginDisabledByDefault(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("GOOGLE_CLIENT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.FederatedLoginEnabled() {
		t.Error("FederatedLoginEnabled() = true, want false")
	}
}

func TestLoad_MissingMarketAPIURL_ReturnsError(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("MARKET_API_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing MARKET_API_URL, got nil")
	}
}

func TestLoad_MissingIdentityAPIKey_ReturnsError(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("IDENTITY_API_KEY", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing IDENTITY_API_KEY, got nil")
	}
}

func TestLoad_ReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "MARKET_API_URL=http://dotenv.example:5000\nIDENTITY_API_KEY=dotenv-key\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	t.Setenv("DOTENV_PATH", path)
	// godotenvは既存の環境変数を上書きしないため、空で登録しておき後で削除する
	t.Setenv("MARKET_API_URL", "")
	t.Setenv("IDENTITY_API_KEY", "")
	os.Unsetenv("MARKET_API_URL")
	os.Unsetenv("IDENTITY_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.MarketAPIURL != "http://dotenv.example:5000" {
		t.Errorf("MarketAPIURL = %q, want %q", cfg.MarketAPIURL, "http://dotenv.example:5000")
	}
	if cfg.IdentityAPIKey != "dotenv-key" {
		t.Errorf("IdentityAPIKey = %q, want %q", cfg.IdentityAPIKey, "dotenv-key")
	}
}

func TestLoadDotEnv_MissingFile_NoError(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("LoadDotEnv() error = %v, want nil", err)
	}
}
