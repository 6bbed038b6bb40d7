package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const productionKey = "0123456789abcdef0123456789abcdef"

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATA_STORE", "memory")
	t.Setenv("PORT", "8000")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TOKEN_SIGNING_KEY", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("TOKEN_ACCESS_TTL", "")
	t.Setenv("TOKEN_REFRESH_TTL", "")
	t.Setenv("TOKEN_ROTATE_REFRESH", "")
	t.Setenv("OAUTH_HTTP_TIMEOUT", "")
	t.Setenv("LOGIN_RATE_PER_MINUTE", "")
	t.Setenv("JANITOR_INTERVAL", "")
	t.Setenv("AUTH_GOOGLE_CLIENT_ID", "")
	t.Setenv("AUTH_GOOGLE_CLIENT_SECRET", "")
	t.Setenv("AUTH_GITHUB_CLIENT_ID", "")
	t.Setenv("AUTH_GITHUB_CLIENT_SECRET", "")
}

func TestLoadDefaultsInDevelopment(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.AccessTokenTTL != time.Hour {
		t.Fatalf("expected 1h access TTL, got %s", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 30*24*time.Hour {
		t.Fatalf("expected 30 day refresh TTL, got %s", cfg.RefreshTokenTTL)
	}
	if !cfg.RotateRefresh {
		t.Fatal("expected refresh rotation to default to true")
	}
	if cfg.OAuthHTTPTimeout != 10*time.Second {
		t.Fatalf("expected 10s OAuth timeout, got %s", cfg.OAuthHTTPTimeout)
	}
	if cfg.RefreshCookieName != "refresh_token" {
		t.Fatalf("unexpected cookie name %q", cfg.RefreshCookieName)
	}
	if cfg.JanitorInterval != time.Hour {
		t.Fatalf("expected 1h janitor interval, got %s", cfg.JanitorInterval)
	}
	if cfg.LoginRatePerMinute != 10 {
		t.Fatalf("expected login rate 10, got %d", cfg.LoginRatePerMinute)
	}
	if cfg.TokenSigningKey == "" {
		t.Fatal("expected a development signing key")
	}
	if !cfg.UseInMemoryStore() {
		t.Fatal("expected memory store")
	}
}

func TestLoadAllowsMissingOAuthCredentials(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("TOKEN_SIGNING_KEY", productionKey)
	t.Setenv("ALLOWED_ORIGINS", "https://worknest.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.GoogleClientID != "" || cfg.GitHubClientID != "" {
		t.Fatal("expected empty OAuth credentials")
	}
}

func TestLoadRequiresLongSigningKeyOutsideDevelopment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("TOKEN_SIGNING_KEY", "short")
	t.Setenv("ALLOWED_ORIGINS", "https://worknest.example.com")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for short signing key")
	}
	if !strings.Contains(err.Error(), "TOKEN_SIGNING_KEY") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsWildcardOriginsOutsideDevelopment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("TOKEN_SIGNING_KEY", productionKey)
	t.Setenv("ALLOWED_ORIGINS", "https://worknest.example.com,*")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for wildcard origin")
	}
	if !strings.Contains(err.Error(), "ALLOWED_ORIGINS") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATA_STORE", "postgres")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL missing")
	}
}

func TestLoadRejectsUnknownDataStore(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATA_STORE", "redis")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown data store")
	}
}

func TestLoadParsesTokenSettings(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TOKEN_ACCESS_TTL", "15m")
	t.Setenv("TOKEN_REFRESH_TTL", "168h")
	t.Setenv("TOKEN_ROTATE_REFRESH", "false")
	t.Setenv("LOGIN_RATE_PER_MINUTE", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.AccessTokenTTL != 15*time.Minute || cfg.RefreshTokenTTL != 168*time.Hour {
		t.Fatalf("unexpected lifetimes: %s / %s", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	}
	if cfg.RotateRefresh {
		t.Fatal("expected rotation disabled")
	}
	if cfg.LoginRatePerMinute != 3 {
		t.Fatalf("expected rate 3, got %d", cfg.LoginRatePerMinute)
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TOKEN_ACCESS_TTL", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoadReadsSecretFromFile(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "signing_key")
	if err := os.WriteFile(path, []byte(productionKey+"\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("TOKEN_SIGNING_KEY_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.TokenSigningKey != productionKey {
		t.Fatalf("expected key from file, got %q", cfg.TokenSigningKey)
	}
}

func TestLoadRejectsEmptySecretFile(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("DATABASE_URL_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for empty secret file")
	}
}
