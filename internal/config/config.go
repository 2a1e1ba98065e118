// Package config loads and validates the fss YAML configuration.
// It applies defaults so the daemon can rely on fully populated values.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DBConfig holds metadata catalog settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Bind        string `yaml:"bind"`
	Port        int    `yaml:"port"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// Config mirrors the fss.yaml schema.
type Config struct {
	Log     LogConfig  `yaml:"log"`
	DB      DBConfig   `yaml:"db"`
	DataDir string     `yaml:"data_dir"`
	HTTP    HTTPConfig `yaml:"http"`
}

// Load reads a YAML config file, applies defaults, and validates it.
func Load(path string) (Config, error) {
	var c Config
	if path == "" {
		return c, errors.New("config path is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	if err := validate(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Default returns the configuration used when no config file is given.
func Default() Config {
	var c Config
	applyDefaults(&c)
	return c
}

// BlobRoot returns the blob store root under the data directory.
func (c Config) BlobRoot() string {
	return filepath.Join(c.DataDir, "files")
}

func applyDefaults(c *Config) {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.DB.Path == "" {
		c.DB.Path = filepath.Join(c.DataDir, "index.db")
	}
	if c.HTTP.Bind == "" {
		c.HTTP.Bind = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.MaxUploadMB == 0 {
		c.HTTP.MaxUploadMB = 512
	}
}

func validate(c *Config) error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if strings.TrimSpace(c.DB.Path) == "" {
		return errors.New("db.path is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port is invalid")
	}
	if c.HTTP.MaxUploadMB < 1 || c.HTTP.MaxUploadMB > 102400 {
		return errors.New("http.max_upload_mb is invalid")
	}
	return nil
}
