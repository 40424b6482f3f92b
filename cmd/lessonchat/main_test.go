package main

import (
	"os"
	"path/filepath"
	"testing"

	"lessonchat/internal/app"
	"lessonchat/internal/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("LESSONCHAT_CONFIG_FILE", "")
	t.Setenv("LESSONCHAT_HTTP_PORT", "")
	t.Setenv("PORT", "")

	cfg, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.HTTP.Port != 5000 {
		t.Errorf("Expected default port 5000, got %d", cfg.HTTP.Port)
	}
}

func TestLoadConfig_FlagFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lessonchat.yaml")
	if err := os.WriteFile(path, []byte("http:\n  port: 6123\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig([]string{"-config", path})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.HTTP.Port != 6123 {
		t.Errorf("Expected port from file, got %d", cfg.HTTP.Port)
	}
}

func TestLoadConfig_BrokenFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("http: [not a map"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LESSONCHAT_HTTP_PORT", "6124")

	cfg, err := loadConfig([]string{"-config", path})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.HTTP.Port != 6124 {
		t.Errorf("Expected env fallback, got %d", cfg.HTTP.Port)
	}
}

func TestLoadConfig_InvalidEnvIsFatal(t *testing.T) {
	t.Setenv("LESSONCHAT_HTTP_PORT", "70000")
	if _, err := loadConfig(nil); err == nil {
		t.Error("Expected validation error")
	}
}

func TestLoadConfig_UnknownFlag(t *testing.T) {
	if _, err := loadConfig([]string{"-nope"}); err == nil {
		t.Error("Expected flag parse error")
	}
}

// TECHNICAL VALIDATION TEST: Error handling patterns
func TestApplication_ConstructorRejectsInvalidConfig(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"invalid_port", func(c *config.Config) { c.HTTP.Port = -1 }},
		{"empty_db_path", func(c *config.Config) { c.Database.Path = "" }},
		{"invalid_write_timeout", func(c *config.Config) { c.Database.WriteTimeout = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tc.modify(cfg)

			application, err := app.NewApplication(cfg)
			if err == nil {
				t.Errorf("Expected error for %s", tc.name)
			}
			if application != nil {
				t.Error("Constructor should not return application with invalid config")
			}
		})
	}
}
