// Package config loads gateway settings from an optional YAML file, a .env
// file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvConfigFile     = "PERFEX_MCP_CONFIG"
	EnvAPIURL         = "PERFEX_API_URL"
	EnvAPIKey         = "PERFEX_API_KEY"
	EnvPort           = "PORT"
	EnvTimeout        = "PERFEX_TIMEOUT"
	EnvKeepAlive      = "SSE_KEEPALIVE"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogDevelopment = "LOG_DEVELOPMENT"
	EnvAllowedOrigins = "CORS_ALLOWED_ORIGINS"
)

const (
	DefaultPort      = 3000
	DefaultTimeout   = 30 * time.Second
	DefaultKeepAlive = 30 * time.Second
	DefaultLogLevel  = "info"
	DefaultEnvFile   = ".env"
)

// ErrMissingAPIURL is returned when no Perfex base URL is configured.
var ErrMissingAPIURL = errors.New(EnvAPIURL + " must be set")

// Config holds the resolved gateway settings.
type Config struct {
	APIURL         string
	APIKey         string
	Port           int
	Timeout        time.Duration
	KeepAlive      time.Duration
	LogLevel       string
	LogDevelopment bool
	AllowedOrigins []string
}

// fileConfig mirrors the YAML layout. Pointer fields; nil = unset.
type fileConfig struct {
	Perfex *struct {
		URL     *string `yaml:"url"`
		APIKey  *string `yaml:"api_key"`
		Timeout *string `yaml:"timeout"`
	} `yaml:"perfex"`
	Server *struct {
		Port           *int     `yaml:"port"`
		KeepAlive      *string  `yaml:"keepalive"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Log *struct {
		Level       *string `yaml:"level"`
		Development *bool   `yaml:"development"`
	} `yaml:"log"`
}

// Default returns the built-in settings. APIURL is left empty on purpose:
// it has no sensible default.
func Default() Config {
	return Config{
		Port:           DefaultPort,
		Timeout:        DefaultTimeout,
		KeepAlive:      DefaultKeepAlive,
		LogLevel:       DefaultLogLevel,
		AllowedOrigins: []string{"*"},
	}
}

// Load resolves the configuration from path (may be empty), ./.env and the
// process environment.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	return LoadFrom(path, DefaultEnvFile, os.LookupEnv)
}

// LoadFrom is Load with explicit sources. Missing files are skipped.
func LoadFrom(path, envFile string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	dotenv, err := readDotEnv(envFile)
	if err != nil {
		return Config{}, err
	}
	resolve := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if err := cfg.applyEnv(resolve); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return vars, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if p := fc.Perfex; p != nil {
		if p.URL != nil {
			c.APIURL = *p.URL
		}
		if p.APIKey != nil {
			c.APIKey = *p.APIKey
		}
		if p.Timeout != nil {
			d, err := cast.ToDurationE(*p.Timeout)
			if err != nil {
				return fmt.Errorf("parse perfex.timeout: %w", err)
			}
			c.Timeout = d
		}
	}
	if s := fc.Server; s != nil {
		if s.Port != nil {
			c.Port = *s.Port
		}
		if s.KeepAlive != nil {
			d, err := cast.ToDurationE(*s.KeepAlive)
			if err != nil {
				return fmt.Errorf("parse server.keepalive: %w", err)
			}
			c.KeepAlive = d
		}
		if len(s.AllowedOrigins) > 0 {
			c.AllowedOrigins = s.AllowedOrigins
		}
	}
	if l := fc.Log; l != nil {
		if l.Level != nil {
			c.LogLevel = *l.Level
		}
		if l.Development != nil {
			c.LogDevelopment = *l.Development
		}
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAPIURL); ok {
		c.APIURL = v
	}
	if v, ok := lookup(EnvAPIKey); ok {
		c.APIKey = v
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvPort, err)
		}
		c.Port = n
	}
	if v, ok := lookup(EnvTimeout); ok && v != "" {
		d, err := cast.ToDurationE(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}
	if v, ok := lookup(EnvKeepAlive); ok && v != "" {
		d, err := cast.ToDurationE(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvKeepAlive, err)
		}
		c.KeepAlive = d
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvLogDevelopment); ok && v != "" {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvLogDevelopment, err)
		}
		c.LogDevelopment = b
	}
	if v, ok := lookup(EnvAllowedOrigins); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			c.AllowedOrigins = origins
		}
	}
	return nil
}

func (c *Config) validate() error {
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.APIURL == "" {
		return ErrMissingAPIURL
	}
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("parse %s: %w", EnvAPIURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", EnvAPIURL, c.APIURL)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%s out of range: %d", EnvPort, c.Port)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%s must not be negative", EnvTimeout)
	}
	if c.KeepAlive < 0 {
		return fmt.Errorf("%s must not be negative", EnvKeepAlive)
	}
	return nil
}
