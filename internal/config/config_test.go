package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// FUNCTIONAL VALIDATION TEST: Default configuration provides production-ready settings
func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("Defaults should validate: %v", err)
	}
	if config.HTTP.Port != 5000 {
		t.Errorf("Expected default port 5000, got %d", config.HTTP.Port)
	}
	if config.HTTP.Address() != "0.0.0.0:5000" {
		t.Errorf("Unexpected address %s", config.HTTP.Address())
	}
	if config.SeedDemoData {
		t.Error("Demo data should be opt-in")
	}
	if len(config.HTTP.AllowedOrigins) != 1 || config.HTTP.AllowedOrigins[0] != "http://localhost:8080" {
		t.Errorf("Unexpected default origins %v", config.HTTP.AllowedOrigins)
	}
}

// FUNCTIONAL VALIDATION TEST: Configuration validation prevents invalid settings
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid port", func(c *Config) { c.HTTP.Port = -1 }},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"no max connections", func(c *Config) { c.Database.MaxConnections = 0 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"read timeout below ping", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }},
		{"zero buffer", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"zero event burst", func(c *Config) { c.WebSocket.EventBurst = 0 }},
		{"zero queue", func(c *Config) { c.Hub.QueueSize = 0 }},
		{"rate limit without window", func(c *Config) { c.HTTP.RateLimitWindow = 0 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"missing hub", func(c *Config) { c.Hub = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	// zero requests disables limiting and needs no window
	config := DefaultConfig()
	config.HTTP.RateLimitRequests = 0
	config.HTTP.RateLimitWindow = 0
	if err := config.Validate(); err != nil {
		t.Errorf("Disabled rate limit should validate: %v", err)
	}
}

func TestConfig_RateLimitRPS(t *testing.T) {
	http := DefaultConfig().HTTP
	if got := http.RateLimitRPS(); got < 0.111 || got > 0.112 {
		t.Errorf("Expected 100 per 15 minutes, got %v rps", got)
	}

	http.RateLimitRequests = 0
	if got := http.RateLimitRPS(); got != 0 {
		t.Errorf("Expected disabled limiter, got %v", got)
	}
}

// FUNCTIONAL VALIDATION TEST: Environment variable configuration loading
func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("LESSONCHAT_HTTP_PORT", "9090")
	t.Setenv("LESSONCHAT_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("LESSONCHAT_HTTP_ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("LESSONCHAT_WEBSOCKET_PING_INTERVAL", "5s")
	t.Setenv("LESSONCHAT_WEBSOCKET_EVENT_RATE", "2.5")
	t.Setenv("LESSONCHAT_HUB_QUEUE_SIZE", "64")
	t.Setenv("LESSONCHAT_LOG_LEVEL", "debug")
	t.Setenv("LESSONCHAT_SEED_DEMO_DATA", "true")

	config := LoadFromEnv()

	if config.HTTP.Port != 9090 {
		t.Errorf("Expected HTTP port 9090, got %d", config.HTTP.Port)
	}
	if config.Database.Path != "/tmp/test.db" {
		t.Errorf("Expected database path /tmp/test.db, got %s", config.Database.Path)
	}
	if strings.Join(config.HTTP.AllowedOrigins, "|") != "http://a.example|http://b.example" {
		t.Errorf("Unexpected origins %v", config.HTTP.AllowedOrigins)
	}
	if config.WebSocket.PingInterval != 5*time.Second || config.WebSocket.EventRate != 2.5 {
		t.Errorf("Unexpected websocket config %+v", config.WebSocket)
	}
	if config.Hub.QueueSize != 64 || config.Logging.Level != "debug" || !config.SeedDemoData {
		t.Errorf("Unexpected hub/logging/seed values %+v %+v %v", config.Hub, config.Logging, config.SeedDemoData)
	}
}

func TestConfig_LoadFromEnvAliases(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("CLIENT_URL", "http://client.example")

	config := LoadFromEnv()
	if config.HTTP.Port != 7000 {
		t.Errorf("Expected PORT alias, got %d", config.HTTP.Port)
	}
	if config.HTTP.AllowedOrigins[0] != "http://client.example" {
		t.Errorf("Expected CLIENT_URL alias, got %v", config.HTTP.AllowedOrigins)
	}

	// prefixed variable wins over the alias
	t.Setenv("LESSONCHAT_HTTP_PORT", "7001")
	if got := LoadFromEnv().HTTP.Port; got != 7001 {
		t.Errorf("Expected prefixed port to win, got %d", got)
	}
}

func TestConfig_LoadFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("LESSONCHAT_HTTP_PORT", "not-a-number")
	t.Setenv("LESSONCHAT_HUB_IDLE_TIMEOUT", "soon")

	config := LoadFromEnv()
	if config.HTTP.Port != 5000 || config.Hub.IdleTimeout != 30*time.Second {
		t.Error("Unparseable values should keep defaults")
	}
}

// TECHNICAL VALIDATION TEST: Configuration file parsing
func TestConfig_LoadFromFileYAML(t *testing.T) {
	path := writeConfigFile(t, "lessonchat.yaml", `
database:
  path: /tmp/testfile.db
  write_timeout: 5s
http:
  port: 8081
  read_timeout: 10s
  allowed_origins: ["*"]
  rate_limit_requests: 0
websocket:
  ping_interval: 20s
  read_timeout: 45s
hub:
  idle_timeout: 1m
logging:
  format: json
seed_demo_data: true
`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile should succeed: %v", err)
	}
	if config.Database.Path != "/tmp/testfile.db" || config.Database.WriteTimeout != 5*time.Second {
		t.Errorf("Unexpected database config %+v", config.Database)
	}
	if config.HTTP.Port != 8081 || config.HTTP.ReadTimeout != 10*time.Second {
		t.Errorf("Unexpected http config %+v", config.HTTP)
	}
	if config.HTTP.RateLimitRequests != 0 {
		t.Error("Explicit zero should disable rate limiting")
	}
	if config.HTTP.AllowedOrigins[0] != "*" {
		t.Errorf("Unexpected origins %v", config.HTTP.AllowedOrigins)
	}
	if config.WebSocket.PingInterval != 20*time.Second || config.Hub.IdleTimeout != time.Minute {
		t.Error("Durations not parsed")
	}
	if config.Logging.Format != "json" || !config.SeedDemoData {
		t.Error("Logging and seed settings not applied")
	}
	// untouched sections keep defaults
	if config.WebSocket.BufferSize != 100 {
		t.Errorf("Expected default buffer size, got %d", config.WebSocket.BufferSize)
	}
}

func TestConfig_LoadFromFileJSON(t *testing.T) {
	path := writeConfigFile(t, "lessonchat.json", `{"http": {"port": 8082}, "database": {"path": "/tmp/j.db"}}`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("JSON config should load: %v", err)
	}
	if config.HTTP.Port != 8082 || config.Database.Path != "/tmp/j.db" {
		t.Errorf("Unexpected values %d %s", config.HTTP.Port, config.Database.Path)
	}
}

func TestConfig_LoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Missing file should fail")
	}

	broken := writeConfigFile(t, "broken.yaml", "http: [unclosed")
	if _, err := LoadFromFile(broken); err == nil {
		t.Error("Malformed file should fail")
	}

	badDuration := writeConfigFile(t, "bad.yaml", "hub:\n  idle_timeout: whenever\n")
	if _, err := LoadFromFile(badDuration); err == nil || !strings.Contains(err.Error(), "hub.idle_timeout") {
		t.Errorf("Expected duration error naming the field, got %v", err)
	}

	invalid := writeConfigFile(t, "invalid.yaml", "http:\n  port: 99999\n")
	if _, err := LoadFromFile(invalid); err == nil {
		t.Error("Out of range port should fail validation")
	}
}

// FUNCTIONAL VALIDATION TEST: Configuration merging behavior
func TestConfig_ConfigurationPrecedence(t *testing.T) {
	t.Setenv("LESSONCHAT_HTTP_PORT", "7777")
	t.Setenv("LESSONCHAT_DATABASE_PATH", "/tmp/env.db")
	path := writeConfigFile(t, "lessonchat.yaml", "http:\n  port: 6666\n")

	config, err := LoadConfigWithPrecedence(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if config.HTTP.Port != 6666 {
		t.Errorf("File should override environment, got %d", config.HTTP.Port)
	}
	if config.Database.Path != "/tmp/env.db" {
		t.Errorf("Environment should fill what the file leaves out, got %s", config.Database.Path)
	}
}

func TestConfig_PrecedenceWithBrokenFile(t *testing.T) {
	t.Setenv("LESSONCHAT_HTTP_PORT", "7777")
	broken := writeConfigFile(t, "broken.yaml", "http: [unclosed")

	config, err := LoadConfigWithPrecedence(broken)
	if err == nil {
		t.Error("Expected the file error to be reported")
	}
	if config == nil || config.HTTP.Port != 7777 {
		t.Fatalf("Expected environment config to survive, got %+v", config)
	}
}

func TestConfig_PrecedenceInvalidEnvironment(t *testing.T) {
	t.Setenv("LESSONCHAT_HUB_QUEUE_SIZE", "-3")
	if _, err := LoadConfigWithPrecedence(""); err == nil {
		t.Error("Invalid environment values should fail validation")
	}
}
