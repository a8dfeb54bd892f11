package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:            "0.0.0.0",
			Port:            18800,
			MaxMessageChars: 4000,
			RateLimitRPM:    60,
			SendBuffer:      64,
			DrainTimeout:    "10s",
			ReplacePolicy:   "keep",
		},
		Database: DatabaseConfig{
			Mode:       ModeStandalone,
			SQLitePath: "~/.booki/relay.db",
		},
		Listings: ListingsConfig{
			Source:  ListingSourceDB,
			Timeout: "5s",
		},
		Log: LogConfig{Format: "text"},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file yields the defaults (still env-overlaid).
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	// Gateway
	envStr("BOOKI_HOST", &c.Gateway.Host)
	if v := os.Getenv("BOOKI_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}
	envStr("BOOKI_GATEWAY_TOKEN", &c.Gateway.Token)
	envInt("BOOKI_RATE_LIMIT_RPM", &c.Gateway.RateLimitRPM)
	envInt("BOOKI_MAX_MESSAGE_CHARS", &c.Gateway.MaxMessageChars)
	envStr("BOOKI_REPLACE_POLICY", &c.Gateway.ReplacePolicy)
	if v := os.Getenv("BOOKI_ALLOWED_ORIGINS"); v != "" {
		c.Gateway.AllowedOrigins = splitList(v)
	}

	// Database
	envStr("BOOKI_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("BOOKI_MODE", &c.Database.Mode)
	envStr("BOOKI_SQLITE_PATH", &c.Database.SQLitePath)
	envStr("BOOKI_DYNAMO_TABLE", &c.Database.DynamoTable)

	// Listings
	envStr("BOOKI_LISTINGS_SOURCE", &c.Listings.Source)
	envStr("BOOKI_LISTINGS_API_BASE", &c.Listings.APIBase)
	envStr("BOOKI_LISTINGS_API_KEY", &c.Listings.APIKey)

	// Auth
	envStr("BOOKI_JWT_SECRET", &c.Auth.JWTSecret)
	envStr("BOOKI_JWT_ISSUER", &c.Auth.Issuer)
	envStr("BOOKI_JWT_AUDIENCE", &c.Auth.Audience)

	// Telemetry
	envStr("BOOKI_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("BOOKI_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("BOOKI_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("BOOKI_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("BOOKI_TELEMETRY_INSECURE", &c.Telemetry.Insecure)

	// Tailscale (tsnet)
	envStr("BOOKI_TSNET_HOSTNAME", &c.Tailscale.Hostname)
	envStr("BOOKI_TSNET_AUTH_KEY", &c.Tailscale.AuthKey)
	envStr("BOOKI_TSNET_DIR", &c.Tailscale.StateDir)

	envStr("BOOKI_SSM_PREFIX", &c.Secrets.SSMPrefix)
	envStr("BOOKI_LOG_FORMAT", &c.Log.Format)
}

// ApplyEnvOverrides re-applies environment variable overrides onto the config.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

// Validate rejects combinations the relay cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Mode {
	case ModeStandalone, ModeManaged:
	case ModeDynamoDB:
		if c.Database.DynamoTable == "" {
			return fmt.Errorf("config: database.dynamo_table is required in %s mode", ModeDynamoDB)
		}
		if c.Listings.Source != ListingSourceHTTP {
			return fmt.Errorf("config: %s mode needs listings.source %q", ModeDynamoDB, ListingSourceHTTP)
		}
	default:
		return fmt.Errorf("config: unknown database.mode %q", c.Database.Mode)
	}
	switch c.Listings.Source {
	case ListingSourceDB:
	case ListingSourceHTTP:
		if c.Listings.APIBase == "" {
			return fmt.Errorf("config: listings.api_base is required for the http source")
		}
	default:
		return fmt.Errorf("config: unknown listings.source %q", c.Listings.Source)
	}
	switch c.Gateway.ReplacePolicy {
	case "", "keep", "close":
	default:
		return fmt.Errorf("config: unknown gateway.replace_policy %q", c.Gateway.ReplacePolicy)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	return nil
}

// Save writes the config to a JSON file. Secrets are tagged json:"-" and
// never written.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Hash returns a short SHA-256 of the config, used to skip no-op reloads.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// SQLitePath returns the expanded standalone database path.
func (c *Config) SQLitePath() string {
	return ExpandHome(c.Database.SQLitePath)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
