// Package config loads client settings.
//
// Sources, lowest priority first:
//  1. built-in defaults
//  2. an optional YAML file
//  3. SHADOW_* environment variables, which may come from a .env file
//     in the working directory
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vatsimnerd/shadow-client/providers/shadow"
)

const (
	DefaultDataDir      = "./data"
	DefaultSSOURL       = shadow.DefaultSSOURL
	DefaultDiscoveryURL = shadow.DefaultDiscoveryURL
	DefaultUserAgent    = shadow.DefaultUserAgent
	DefaultTimeout      = 30 * time.Second
	DefaultLogLevel     = "info"
)

type Config struct {
	DataDir      string        `yaml:"data_dir"`
	SSOURL       string        `yaml:"sso_url"`
	DiscoveryURL string        `yaml:"discovery_url"`
	UserAgent    string        `yaml:"user_agent"`
	Timeout      time.Duration `yaml:"timeout"`
	LogLevel     string        `yaml:"log_level"`
}

func Default() *Config {
	return &Config{
		DataDir:      DefaultDataDir,
		SSOURL:       DefaultSSOURL,
		DiscoveryURL: DefaultDiscoveryURL,
		UserAgent:    DefaultUserAgent,
		Timeout:      DefaultTimeout,
		LogLevel:     DefaultLogLevel,
	}
}

// Load builds the configuration. An empty path skips the YAML file; a
// missing .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrideString(&c.DataDir, "SHADOW_DATA_DIR")
	overrideString(&c.SSOURL, "SHADOW_SSO_URL")
	overrideString(&c.DiscoveryURL, "SHADOW_DISCOVERY_URL")
	overrideString(&c.UserAgent, "SHADOW_USER_AGENT")
	overrideString(&c.LogLevel, "SHADOW_LOG_LEVEL")

	if v := os.Getenv("SHADOW_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SHADOW_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	return nil
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	for name, raw := range map[string]string{"sso_url": c.SSOURL, "discovery_url": c.DiscoveryURL} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("%s: %q is not an absolute URL", name, raw)
		}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Level returns the parsed log level. Validate has already checked it.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
