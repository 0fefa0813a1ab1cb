package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration: a YAML file (path from CONFIG,
// default config.yml) overlaid with environment variables. Everything is
// loaded and validated once at startup; a bad remote API base URL or a
// missing database DSN is fatal here, never per request.
type Config struct {
	Environment string `yaml:"environment"`

	HTTP struct {
		Addr      string `yaml:"addr"`
		Secure    bool   `yaml:"secure"`
		StaticDir string `yaml:"static_dir"`
	} `yaml:"http"`

	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	API struct {
		BaseURL string   `yaml:"base_url"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"api"`

	LDAP struct {
		URL           string   `yaml:"url"`
		BindUser      string   `yaml:"bind_user"`
		BindPassword  string   `yaml:"bind_password"`
		BaseDN        string   `yaml:"base_dn"`
		AllowedGroups []string `yaml:"allowed_groups"`
		Timeout       Duration `yaml:"timeout"`
	} `yaml:"ldap"`

	Auth struct {
		DevBypass   bool     `yaml:"dev_bypass"`
		SessionTTL  Duration `yaml:"session_ttl"`
		SessionIdle Duration `yaml:"session_idle"`
	} `yaml:"auth"`
}

// Duration is a time.Duration that unmarshals from "10s" style YAML strings
// as well as bare nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		nanos, intErr := strconv.ParseInt(value.Value, 10, 64)
		if intErr != nil {
			return fmt.Errorf("config: invalid duration %q: %w", value.Value, err)
		}
		parsed = time.Duration(nanos)
	}
	*d = Duration(parsed)
	return nil
}

// DevBypassActive reports whether the fixed test credential pair is live.
// Both the explicit config flag and a development environment are required.
func (c Config) DevBypassActive() bool {
	return c.Auth.DevBypass && c.Environment == "development"
}

// LoadConfig reads and validates the configuration.
func LoadConfig() (Config, error) {
	var cfg Config
	cfg.Environment = "production"
	cfg.HTTP.Addr = ":8080"
	cfg.HTTP.StaticDir = "public"
	cfg.API.Timeout = Duration(10 * time.Second)
	cfg.LDAP.Timeout = Duration(10 * time.Second)
	cfg.Auth.SessionTTL = Duration(12 * time.Hour)
	cfg.Auth.SessionIdle = Duration(time.Hour)

	path := getenvDefault("CONFIG", "config.yml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg.Environment = getenvDefault("ENVIRONMENT", cfg.Environment)
	cfg.HTTP.Addr = getenvDefault("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.StaticDir = getenvDefault("STATIC_DIR", cfg.HTTP.StaticDir)
	cfg.Database.DSN = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.Database.DSN))
	cfg.API.BaseURL = getenvDefault("API_BASE_URL", cfg.API.BaseURL)
	cfg.LDAP.URL = getenvDefault("LDAP_URL", cfg.LDAP.URL)
	cfg.LDAP.BindUser = getenvDefault("LDAP_BIND_USER", cfg.LDAP.BindUser)
	cfg.LDAP.BindPassword = getenvDefault("LDAP_BIND_PASSWORD", cfg.LDAP.BindPassword)
	cfg.LDAP.BaseDN = getenvDefault("LDAP_BASE_DN", cfg.LDAP.BaseDN)
	if groups := splitCSV(os.Getenv("LDAP_ALLOWED_GROUPS")); len(groups) > 0 {
		cfg.LDAP.AllowedGroups = groups
	}
	if value := os.Getenv("AUTH_DEV_BYPASS"); value != "" {
		cfg.Auth.DevBypass, _ = strconv.ParseBool(value)
	}

	if cfg.Database.DSN == "" {
		return cfg, errors.New("config: database dsn is required (database.dsn or DATABASE_URL)")
	}
	if cfg.API.BaseURL == "" {
		return cfg, errors.New("config: collector api base url is required (api.base_url or API_BASE_URL)")
	}
	if base, err := url.Parse(cfg.API.BaseURL); err != nil || !base.IsAbs() || base.Host == "" {
		return cfg, fmt.Errorf("config: collector api base url %q is not an absolute URL", cfg.API.BaseURL)
	}
	if !cfg.DevBypassActive() {
		if cfg.LDAP.URL == "" {
			return cfg, errors.New("config: ldap url is required (ldap.url or LDAP_URL)")
		}
		if cfg.LDAP.BaseDN == "" {
			return cfg, errors.New("config: ldap base dn is required (ldap.base_dn or LDAP_BASE_DN)")
		}
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
