package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	want := []string{"png", "jpg", "jpeg", "svg", "webp"}
	if !reflect.DeepEqual(cfg.SupportedExtensions, want) {
		t.Errorf("extensions = %v, want %v", cfg.SupportedExtensions, want)
	}
	if cfg.Compression.DefaultQuality != 80 {
		t.Errorf("default quality = %d", cfg.Compression.DefaultQuality)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
supported_extensions: [".PNG", "jpg", "jpg"]
compression:
  default_quality: 65
  overwrite: true
  workers: 3
server:
  port: 9090
logging:
  level: DEBUG
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg.SupportedExtensions, []string{"png", "jpg"}) {
		t.Errorf("extensions = %v", cfg.SupportedExtensions)
	}
	if cfg.Compression.DefaultQuality != 65 || !cfg.Compression.Overwrite {
		t.Errorf("compression = %+v", cfg.Compression)
	}
	if cfg.EngineWorkers() != 3 {
		t.Errorf("EngineWorkers = %d", cfg.EngineWorkers())
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, "compression:\n  default_quality: 65\n")
	t.Setenv("IMAGE_COMPRESSOR_COMPRESSION_DEFAULT_QUALITY", "42")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Compression.DefaultQuality != 42 {
		t.Errorf("default quality = %d, want 42", cfg.Compression.DefaultQuality)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"quality", func(c *Config) { c.Compression.DefaultQuality = 101 }, "default_quality"},
		{"extensions", func(c *Config) { c.SupportedExtensions = []string{" ", "."} }, "supported_extensions"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"workers", func(c *Config) { c.Compression.Workers = -1 }, "workers"},
		{"level", func(c *Config) { c.Logging.Level = "trace" }, "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.substr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.substr)
			}
		})
	}
}

func TestEngineWorkersDefault(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.EngineWorkers() < 2 {
		t.Errorf("EngineWorkers = %d, want at least 2", cfg.EngineWorkers())
	}
}

func TestSaveToFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Compression.DefaultQuality = 70
	cfg.Server.WatchDirectories = []string{"/tmp/in"}
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Compression.DefaultQuality != 70 {
		t.Errorf("quality = %d", loaded.Compression.DefaultQuality)
	}
	if !reflect.DeepEqual(loaded.Server.WatchDirectories, []string{"/tmp/in"}) {
		t.Errorf("watch dirs = %v", loaded.Server.WatchDirectories)
	}
}
