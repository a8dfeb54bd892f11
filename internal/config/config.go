package config

import (
	"sync"
	"time"
)

// Config is the root configuration for the booki relay.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Listings  ListingsConfig  `json:"listings,omitempty"`
	Auth      AuthConfig      `json:"auth,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Tailscale TailscaleConfig `json:"tailscale,omitempty"`
	Secrets   SecretsConfig   `json:"secrets,omitempty"`
	Log       LogConfig       `json:"log,omitempty"`
	mu        sync.RWMutex
}

// GatewayConfig controls the WebSocket endpoint.
type GatewayConfig struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	Token           string   `json:"-"`                           // from env BOOKI_GATEWAY_TOKEN or SSM only
	AllowedOrigins  []string `json:"allowed_origins,omitempty"`   // WebSocket CORS whitelist (empty = allow all)
	MaxMessageChars int      `json:"max_message_chars,omitempty"` // max message characters (default 4000, 0 = unlimited)
	RateLimitRPM    int      `json:"rate_limit_rpm,omitempty"`    // sends per minute per identity (0 = disabled)
	SendBuffer      int      `json:"send_buffer,omitempty"`       // queued outbound frames per connection (default 64)
	DrainTimeout    string   `json:"drain_timeout,omitempty"`     // Go duration, bound on graceful drain (default "10s")
	ReplacePolicy   string   `json:"replace_policy,omitempty"`    // "keep" (default) or "close"
}

// DatabaseConfig selects the message store.
// PostgresDSN is NEVER read from config.json (secret): env BOOKI_POSTGRES_DSN or SSM.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
	Mode        string `json:"mode,omitempty"`         // "standalone" (default, sqlite), "managed" (postgres), "dynamodb"
	SQLitePath  string `json:"sqlite_path,omitempty"`  // standalone database file (default ~/.booki/relay.db)
	DynamoTable string `json:"dynamo_table,omitempty"` // dynamodb mode table name
}

// ListingsConfig selects where listing ownership comes from.
type ListingsConfig struct {
	Source  string `json:"source,omitempty"`   // "db" (default) or "http"
	APIBase string `json:"api_base,omitempty"` // http source base URL
	APIKey  string `json:"-"`                  // from env BOOKI_LISTINGS_API_KEY only
	Timeout string `json:"timeout,omitempty"`  // Go duration (default "5s")
}

// AuthConfig binds connections to a signed identity. With a JWT secret set,
// the connect token must be an HS256 JWT whose subject is the identity.
type AuthConfig struct {
	JWTSecret string `json:"-"`                  // from env BOOKI_JWT_SECRET or SSM only
	Issuer    string `json:"issuer,omitempty"`   // required "iss" when set
	Audience  string `json:"audience,omitempty"` // required "aud" when set
}

// TelemetryConfig configures OpenTelemetry export for relay spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317", "https://otel.example.com:4318")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext connection (local dev)
	ServiceName string            `json:"service_name,omitempty"` // OTEL service name (default "booki-relay")
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens for cloud backends)
}

// TailscaleConfig configures the optional Tailscale tsnet listener.
// Requires building with -tags tsnet. Auth key from env only (never persisted).
type TailscaleConfig struct {
	Hostname  string `json:"hostname"`
	StateDir  string `json:"state_dir,omitempty"`
	AuthKey   string `json:"-"` // from env BOOKI_TSNET_AUTH_KEY only
	Ephemeral bool   `json:"ephemeral,omitempty"`
	EnableTLS bool   `json:"enable_tls,omitempty"`
}

// SecretsConfig points at an AWS SSM parameter prefix holding the DSN and
// gateway token. Env values win over SSM.
type SecretsConfig struct {
	SSMPrefix string `json:"ssm_prefix,omitempty"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Format string `json:"format,omitempty"` // "text" (default) or "json"
}

// Store modes.
const (
	ModeStandalone = "standalone"
	ModeManaged    = "managed"
	ModeDynamoDB   = "dynamodb"
)

// Listing sources.
const (
	ListingSourceDB   = "db"
	ListingSourceHTTP = "http"
)

// IsManagedMode returns true if messages live in Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == ModeManaged && c.Database.PostgresDSN != ""
}

// AllowedOrigins returns the current origin whitelist. Safe during reloads.
func (c *Config) AllowedOrigins() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.Gateway.AllowedOrigins...)
}

// RateLimitRPM returns the current per-identity send rate.
func (c *Config) RateLimitRPM() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Gateway.RateLimitRPM
}

// DrainTimeout parses gateway.drain_timeout, defaulting to 10s.
func (c *Config) DrainTimeout() time.Duration {
	return parseDuration(c.Gateway.DrainTimeout, 10*time.Second)
}

// ListingsTimeout parses listings.timeout, defaulting to 5s.
func (c *Config) ListingsTimeout() time.Duration {
	return parseDuration(c.Listings.Timeout, 5*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gateway = src.Gateway
	c.Database = src.Database
	c.Listings = src.Listings
	c.Auth = src.Auth
	c.Telemetry = src.Telemetry
	c.Tailscale = src.Tailscale
	c.Secrets = src.Secrets
	c.Log = src.Log
}

// ApplyReloadable copies only the settings that take effect without a
// restart: the origin whitelist and the send rate.
func (c *Config) ApplyReloadable(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gateway.AllowedOrigins = append([]string(nil), src.Gateway.AllowedOrigins...)
	c.Gateway.RateLimitRPM = src.Gateway.RateLimitRPM
}
