package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure
type Config struct {
	SupportedExtensions []string          `mapstructure:"supported_extensions" yaml:"supported_extensions"`
	Compression         CompressionConfig `mapstructure:"compression" yaml:"compression"`
	Server              ServerConfig      `mapstructure:"server" yaml:"server"`
	Logging             LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// CompressionConfig contains defaults applied to compression requests
type CompressionConfig struct {
	DefaultQuality int    `mapstructure:"default_quality" yaml:"default_quality"`
	OutputDir      string `mapstructure:"output_dir" yaml:"output_dir"`
	Overwrite      bool   `mapstructure:"overwrite" yaml:"overwrite"`
	Workers        int    `mapstructure:"workers" yaml:"workers"` // 0 means 2x logical CPUs
	SkipMarked     bool   `mapstructure:"skip_marked" yaml:"skip_marked"`
	MarkOutput     bool   `mapstructure:"mark_output" yaml:"mark_output"`
}

// ServerConfig contains settings for the local HTTP API
type ServerConfig struct {
	Port             int      `mapstructure:"port" yaml:"port"`
	WatchDirectories []string `mapstructure:"watch_directories" yaml:"watch_directories"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	FilePath   string `mapstructure:"file_path" yaml:"file_path"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		SupportedExtensions: []string{"png", "jpg", "jpeg", "svg", "webp"},
		Compression: CompressionConfig{
			DefaultQuality: 80,
			OutputDir:      "",
			Overwrite:      false,
			Workers:        0,
			SkipMarked:     false,
			MarkOutput:     false,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()
	v := viper.New()

	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.image-compressor")
		v.AddConfigPath("/etc/image-compressor")
	}

	setDefaults(v, config)

	// Enable environment variable support
	v.SetEnvPrefix("IMAGE_COMPRESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("supported_extensions", c.SupportedExtensions)
	v.SetDefault("compression.default_quality", c.Compression.DefaultQuality)
	v.SetDefault("compression.output_dir", c.Compression.OutputDir)
	v.SetDefault("compression.overwrite", c.Compression.Overwrite)
	v.SetDefault("compression.workers", c.Compression.Workers)
	v.SetDefault("compression.skip_marked", c.Compression.SkipMarked)
	v.SetDefault("compression.mark_output", c.Compression.MarkOutput)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.watch_directories", c.Server.WatchDirectories)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
}

// Validate validates the configuration and fills in derived defaults
func (c *Config) Validate() error {
	c.SupportedExtensions = normalizeExtensions(c.SupportedExtensions)
	if len(c.SupportedExtensions) == 0 {
		return fmt.Errorf("supported_extensions cannot be empty")
	}

	if c.Compression.DefaultQuality < 0 || c.Compression.DefaultQuality > 100 {
		return fmt.Errorf("compression.default_quality must be between 0 and 100, got %d",
			c.Compression.DefaultQuality)
	}

	if c.Compression.OutputDir != "" {
		c.Compression.OutputDir = expandPath(c.Compression.OutputDir)
	}

	if c.Compression.Workers < 0 {
		return fmt.Errorf("compression.workers must not be negative")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}

	for i, dir := range c.Server.WatchDirectories {
		c.Server.WatchDirectories[i] = expandPath(dir)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// EngineWorkers returns the size of the shared encode pool
func (c *Config) EngineWorkers() int {
	if c.Compression.Workers > 0 {
		return c.Compression.Workers
	}
	return 2 * runtime.NumCPU()
}

// SaveToFile writes the configuration as YAML
func (c *Config) SaveToFile(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Helper functions

func expandPath(path string) string {
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return expanded
		}
		expanded = filepath.Join(home, expanded[1:])
	}
	return expanded
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, 0, len(extensions))
	seen := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext == "" || seen[ext] {
			continue
		}
		seen[ext] = true
		normalized = append(normalized, ext)
	}
	return normalized
}
