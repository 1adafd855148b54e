// Package config loads server configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"go.ngs.io/satellite-image-api/internal/domain"
)

// Backends selectable with IMAGERY_BACKEND.
const (
	BackendEarthEngine = "earthengine"
	BackendMemory      = "memory"
)

// EarthEngineScope is the OAuth scope requested for Earth Engine calls.
const EarthEngineScope = "https://www.googleapis.com/auth/earthengine.readonly"

// Config holds server settings.
type Config struct {
	Port    string
	Backend string

	EEProject          string
	EEBaseURL          string
	ServiceAccountJSON string
	ServiceAccountFile string

	FixturesPath string
	PublicURL    string

	CatalogPath   string
	RemoteTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:               GetEnv("PORT", "8080"),
		Backend:            strings.ToLower(GetEnv("IMAGERY_BACKEND", BackendEarthEngine)),
		EEProject:          os.Getenv("EE_PROJECT"),
		EEBaseURL:          os.Getenv("EE_BASE_URL"),
		ServiceAccountJSON: os.Getenv("SERVICE_ACCOUNT_JSON"),
		ServiceAccountFile: GetEnv("SERVICE_ACCOUNT_FILE", "service-key.json"),
		FixturesPath:       os.Getenv("FIXTURES_PATH"),
		CatalogPath:        os.Getenv("CATALOG_PATH"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
	}
	cfg.PublicURL = GetEnv("PUBLIC_URL", "http://localhost:"+cfg.Port)

	var err error
	if cfg.RemoteTimeout, err = durationEnv("REMOTE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = durationEnv("CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that do not require I/O.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendEarthEngine:
	case BackendMemory:
		if c.FixturesPath == "" {
			return errors.New("FIXTURES_PATH is required for the memory backend")
		}
	default:
		return fmt.Errorf("unknown IMAGERY_BACKEND %q (expected %s or %s)", c.Backend, BackendEarthEngine, BackendMemory)
	}
	if c.RemoteTimeout <= 0 {
		return errors.New("REMOTE_TIMEOUT must be positive")
	}
	return nil
}

// Catalog returns the catalog from CATALOG_PATH, or the built-in one.
func (c *Config) Catalog() (domain.Catalog, error) {
	if c.CatalogPath == "" {
		return domain.DefaultCatalog(), nil
	}
	return domain.LoadCatalog(c.CatalogPath)
}

// EarthEngineClient builds an authenticated HTTP client from the service
// account key in SERVICE_ACCOUNT_JSON, or SERVICE_ACCOUNT_FILE when unset. It
// returns the project to bill: EE_PROJECT, or the key's project.
func (c *Config) EarthEngineClient(ctx context.Context) (*http.Client, string, error) {
	key := []byte(c.ServiceAccountJSON)
	if len(key) == 0 {
		b, err := os.ReadFile(c.ServiceAccountFile)
		if err != nil {
			return nil, "", fmt.Errorf("read service account key: %w", err)
		}
		key = b
	}

	creds, err := google.CredentialsFromJSON(ctx, key, EarthEngineScope)
	if err != nil {
		return nil, "", fmt.Errorf("parse service account key: %w", err)
	}

	project := c.EEProject
	if project == "" {
		project = creds.ProjectID
	}
	if project == "" {
		return nil, "", errors.New("EE_PROJECT is not set and the service account key has no project_id")
	}
	return oauth2.NewClient(ctx, creds.TokenSource), project, nil
}

// GetEnv retrieves an environment variable or returns a default value.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
