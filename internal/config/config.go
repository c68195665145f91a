// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port              string
	FrontendURL       string
	DBPath            string
	BackendURL        string
	LoginPath         string
	LandingPath       string
	OAuth             OAuthConfig
	ClientIdleTTL     time.Duration
	AnalysisRetention time.Duration
	UploadMaxBytes    int
	MetricsInterval   time.Duration
	AuthRatePerMinute int
}

// OAuthConfig holds the identity-provider client settings.
type OAuthConfig struct {
	GoogleClientID    string
	GitHubClientID    string
	GitHubRedirectURL string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := getEnv("PORT", "8080")

	cfg := &Config{
		Port:        port,
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/agro.db"),
		BackendURL:  getEnv("BACKEND_URL", "http://localhost:5000"),
		LoginPath:   getEnv("LOGIN_PATH", "/login"),
		LandingPath: getEnv("LANDING_PATH", "/dashboard"),
		OAuth: OAuthConfig{
			GoogleClientID:    getEnv("GOOGLE_CLIENT_ID", ""),
			GitHubClientID:    getEnv("GITHUB_CLIENT_ID", ""),
			GitHubRedirectURL: getEnv("GITHUB_REDIRECT_URL", "http://localhost:"+port+"/github/callback"),
		},
		ClientIdleTTL:     getEnvDuration("CLIENT_IDLE_TTL", 60*time.Minute),
		AnalysisRetention: getEnvDuration("ANALYSIS_RETENTION", 30*24*time.Hour),
		UploadMaxBytes:    getEnvInt("UPLOAD_MAX_BYTES", 10<<20),
		MetricsInterval:   getEnvDuration("METRICS_INTERVAL", 5*time.Second),
		AuthRatePerMinute: getEnvInt("AUTH_RATE_PER_MINUTE", 30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute URL, got %q", c.BackendURL)
	}
	if !strings.HasPrefix(c.LoginPath, "/") {
		return fmt.Errorf("LOGIN_PATH must start with /")
	}
	if !strings.HasPrefix(c.LandingPath, "/") {
		return fmt.Errorf("LANDING_PATH must start with /")
	}
	if c.ClientIdleTTL <= 0 {
		return fmt.Errorf("CLIENT_IDLE_TTL must be > 0")
	}
	if c.AnalysisRetention <= 0 {
		return fmt.Errorf("ANALYSIS_RETENTION must be > 0")
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be > 0")
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("METRICS_INTERVAL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the origins allowed to make credentialed requests.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
