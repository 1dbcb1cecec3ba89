// Package deskconfig reads the desk CLI configuration.
//
// Example (~/.helpdesk/config.yaml):
//
//	api:
//	  url: http://localhost:8080/api
//	  timeout: 30s
//	mode: rest
//	logLevel: warn
//
// A missing file yields defaults. HELPDESK_API_URL overrides api.url.
package deskconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL  = "http://localhost:8080/api"
	DefaultTimeout = 30 * time.Second

	ModeREST   = "rest"
	ModeMemory = "memory"

	EnvAPIURL = "HELPDESK_API_URL"
)

type Config struct {
	API         APIConfig `yaml:"api"`
	Mode        string    `yaml:"mode"`
	SessionFile string    `yaml:"sessionFile"`
	LogLevel    string    `yaml:"logLevel"`
}

type APIConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (dir, file string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	dir = filepath.Join(home, ".helpdesk")
	return dir, filepath.Join(dir, "config.yaml"), nil
}

func Default(dir string) *Config {
	return &Config{
		API:         APIConfig{URL: DefaultAPIURL, Timeout: DefaultTimeout},
		Mode:        ModeREST,
		SessionFile: filepath.Join(dir, "session.db"),
		LogLevel:    "warn",
	}
}

// Load reads path, or the default location when path is empty.
func Load(path string) (*Config, string, error) {
	dir, file, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		file = path
		dir = filepath.Dir(path)
	}

	cfg := Default(dir)
	b, err := os.ReadFile(file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, "", fmt.Errorf("read config file %s: %w", file, err)
	default:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, "", fmt.Errorf("parse yaml config %s: %w", file, err)
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		cfg.API.URL = v
	}
	if err := cfg.validate(); err != nil {
		return nil, "", fmt.Errorf("%s: %w", file, err)
	}
	return cfg, file, nil
}

func (c *Config) validate() error {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	switch c.Mode {
	case "":
		c.Mode = ModeREST
	case ModeREST, ModeMemory:
	default:
		return fmt.Errorf("invalid mode %q", c.Mode)
	}
	if c.Mode == ModeREST && strings.TrimSpace(c.API.URL) == "" {
		return errors.New("api.url is required in rest mode")
	}
	c.API.URL = strings.TrimRight(c.API.URL, "/")
	if c.API.Timeout <= 0 {
		c.API.Timeout = DefaultTimeout
	}
	return nil
}

// Save writes the config with owner-only permissions.
func Save(path string, c *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, b, 0o600)
}
