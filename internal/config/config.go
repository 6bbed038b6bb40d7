package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSigningKeyBytes = 32

// Config aggregates runtime configuration for the WorkNest API.
type Config struct {
	Environment    string
	HTTPPort       int
	DatabaseURL    string
	DataStore      string
	LogLevel       string
	AllowedOrigins []string

	TokenSigningKey     string
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	RotateRefresh       bool
	RefreshCookieName   string
	RefreshCookieDomain string

	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string
	OAuthHTTPTimeout   time.Duration

	LoginRatePerMinute int
	JanitorInterval    time.Duration
	SeedDemoData       bool
}

// Load reads configuration from environment variables with sensible defaults for local
// development. A .env file in the working directory is loaded first when present; it never
// overrides variables that are already set.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: loading .env: %w", err)
	}

	databaseURL, err := getEnvOrFile("DATABASE_URL", "/run/secrets/worknest_database_url")
	if err != nil {
		return Config{}, err
	}
	signingKey, err := getEnvOrFile("TOKEN_SIGNING_KEY", "/run/secrets/worknest_token_signing_key")
	if err != nil {
		return Config{}, err
	}
	googleSecret, err := getEnvOrFile("AUTH_GOOGLE_CLIENT_SECRET", "")
	if err != nil {
		return Config{}, err
	}
	githubSecret, err := getEnvOrFile("AUTH_GITHUB_CLIENT_SECRET", "")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment:         getEnv("APP_ENV", "development"),
		DatabaseURL:         databaseURL,
		DataStore:           strings.ToLower(getEnv("DATA_STORE", "memory")),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		AllowedOrigins:      parseCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		TokenSigningKey:     strings.TrimSpace(signingKey),
		RefreshCookieName:   getEnv("REFRESH_COOKIE_NAME", "refresh_token"),
		RefreshCookieDomain: strings.TrimSpace(os.Getenv("REFRESH_COOKIE_DOMAIN")),
		GoogleClientID:      strings.TrimSpace(os.Getenv("AUTH_GOOGLE_CLIENT_ID")),
		GoogleClientSecret:  strings.TrimSpace(googleSecret),
		GitHubClientID:      strings.TrimSpace(os.Getenv("AUTH_GITHUB_CLIENT_ID")),
		GitHubClientSecret:  strings.TrimSpace(githubSecret),
	}

	portValue := getEnv("PORT", getEnv("HTTP_PORT", "8000"))
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return Config{}, fmt.Errorf("invalid port %q: %w", portValue, err)
	}
	cfg.HTTPPort = port

	if cfg.AccessTokenTTL, err = getDuration("TOKEN_ACCESS_TTL", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = getDuration("TOKEN_REFRESH_TTL", 30*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.OAuthHTTPTimeout, err = getDuration("OAUTH_HTTP_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.JanitorInterval, err = getDuration("JANITOR_INTERVAL", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.RotateRefresh, err = getBool("TOKEN_ROTATE_REFRESH", true); err != nil {
		return Config{}, err
	}
	if cfg.SeedDemoData, err = getBool("SEED_DEMO_DATA", false); err != nil {
		return Config{}, err
	}
	if cfg.LoginRatePerMinute, err = getInt("LOGIN_RATE_PER_MINUTE", 10); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DataStore {
	case "memory", "postgres":
	default:
		return fmt.Errorf("DATA_STORE must be memory or postgres, got %q", c.DataStore)
	}
	if c.DataStore == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("DATA_STORE is postgres but DATABASE_URL is not set")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.LoginRatePerMinute <= 0 {
		return fmt.Errorf("LOGIN_RATE_PER_MINUTE must be positive")
	}

	if c.IsDevelopment() {
		if c.TokenSigningKey == "" {
			c.TokenSigningKey = "development-only-signing-key-change-me"
		}
		return nil
	}

	if len(c.TokenSigningKey) < minSigningKeyBytes {
		return fmt.Errorf("TOKEN_SIGNING_KEY must be at least %d bytes outside development", minSigningKeyBytes)
	}
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("ALLOWED_ORIGINS cannot contain * outside development")
		}
	}
	return nil
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// UseInMemoryStore returns true if the in-memory repositories should be used.
func (c Config) UseInMemoryStore() bool {
	return c.DataStore == "memory"
}

// IsDevelopment reports whether the service runs in the development environment.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

func getInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: reading %s (%s): %w", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", fmt.Errorf("config: %s (%s) is empty", name, path)
	}
	return value, nil
}
