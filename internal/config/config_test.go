package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 18800 || cfg.Database.Mode != ModeStandalone || cfg.Listings.Source != ListingSourceDB {
		t.Errorf("defaults = %+v / %+v", cfg.Gateway, cfg.Database)
	}
	if cfg.DrainTimeout() != 10*time.Second {
		t.Errorf("drain = %s", cfg.DrainTimeout())
	}
}

func TestLoad_JSON5AndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{
		// comments and trailing commas are fine
		gateway: { port: 9000, allowed_origins: ["https://booki.tn"], drain_timeout: "3s", },
		listings: { source: "http", api_base: "http://listings.local" },
	}`)
	t.Setenv("BOOKI_POSTGRES_DSN", "postgres://relay@db/booki")
	t.Setenv("BOOKI_MODE", "managed")
	t.Setenv("BOOKI_GATEWAY_TOKEN", "tok")
	t.Setenv("BOOKI_PORT", "9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 9100 {
		t.Errorf("port = %d, env should win", cfg.Gateway.Port)
	}
	if !cfg.IsManagedMode() {
		t.Error("expected managed mode")
	}
	if cfg.Gateway.Token != "tok" {
		t.Errorf("token = %q", cfg.Gateway.Token)
	}
	if got := cfg.AllowedOrigins(); len(got) != 1 || got[0] != "https://booki.tn" {
		t.Errorf("origins = %v", got)
	}
	if cfg.DrainTimeout() != 3*time.Second {
		t.Errorf("drain = %s", cfg.DrainTimeout())
	}
}

func TestLoad_SecretsNotReadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"gateway": {"token": "leaked"}, "database": {"postgres_dsn": "x", "PostgresDSN": "y"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Token != "" || cfg.Database.PostgresDSN != "" {
		t.Errorf("secret read from file: token=%q dsn=%q", cfg.Gateway.Token, cfg.Database.PostgresDSN)
	}
}

func TestLoad_AuthFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{auth: {issuer: "booki-web", jwt_secret: "leaked"}}`)
	t.Setenv("BOOKI_JWT_SECRET", "hmac")
	t.Setenv("BOOKI_JWT_AUDIENCE", "relay")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.JWTSecret != "hmac" {
		t.Errorf("jwt secret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.Issuer != "booki-web" || cfg.Auth.Audience != "relay" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown mode", func(c *Config) { c.Database.Mode = "mongo" }, true},
		{"dynamo without table", func(c *Config) {
			c.Database.Mode = ModeDynamoDB
			c.Listings = ListingsConfig{Source: ListingSourceHTTP, APIBase: "http://x"}
		}, true},
		{"dynamo with db listings", func(c *Config) {
			c.Database.Mode = ModeDynamoDB
			c.Database.DynamoTable = "chat"
		}, true},
		{"dynamo ok", func(c *Config) {
			c.Database = DatabaseConfig{Mode: ModeDynamoDB, DynamoTable: "chat"}
			c.Listings = ListingsConfig{Source: ListingSourceHTTP, APIBase: "http://x"}
		}, false},
		{"http without base", func(c *Config) { c.Listings.Source = ListingSourceHTTP }, true},
		{"bad replace policy", func(c *Config) { c.Gateway.ReplacePolicy = "kick" }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyReloadable_OnlyTouchesHotFields(t *testing.T) {
	c := Default()
	c.Gateway.Token = "keep-me"
	src := Default()
	src.Gateway.AllowedOrigins = []string{"https://a"}
	src.Gateway.RateLimitRPM = 5
	src.Gateway.Port = 1

	c.ApplyReloadable(src)
	if c.RateLimitRPM() != 5 || len(c.AllowedOrigins()) != 1 {
		t.Errorf("hot fields not applied: %+v", c.Gateway)
	}
	if c.Gateway.Port != 18800 || c.Gateway.Token != "keep-me" {
		t.Errorf("cold fields changed: %+v", c.Gateway)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeFile(t, path, `{"gateway": {"rate_limit_rpm": 10}}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan int, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { got <- c.RateLimitRPM() })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, `{"gateway": {"rate_limit_rpm": 42}}`)

	select {
	case rpm := <-got:
		if rpm != 42 {
			t.Errorf("rpm = %d, want 42", rpm)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch: %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandHome("~/.booki/relay.db"); got != home+"/.booki/relay.db" {
		t.Errorf("got %q", got)
	}
	if got := ExpandHome("/abs"); got != "/abs" {
		t.Errorf("got %q", got)
	}
}
