package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port" validate:"omitempty,numeric"`
		ReadTimeout    string   `yaml:"read_timeout"`
		WriteTimeout   string   `yaml:"write_timeout"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
		Format string `yaml:"format" validate:"omitempty,oneof=text json"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" validate:"omitempty,url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL         string `yaml:"ttl"`
		CatalogFile string `yaml:"catalog_file"`
	} `yaml:"quiz"`
	Session struct {
		Retention      string `yaml:"retention"`
		CodeAttempts   int    `yaml:"code_attempts" validate:"gte=0"`
		ReaperInterval string `yaml:"reaper_interval"`
	} `yaml:"session"`
}

const (
	DefaultPort           = "8080"
	DefaultReadTimeout    = 15 * time.Second
	DefaultWriteTimeout   = 15 * time.Second
	DefaultRedisTTL       = 48 * time.Hour
	DefaultQuizTTL        = 10 * time.Minute
	DefaultRetention      = 24 * time.Hour
	DefaultCodeAttempts   = 32
	DefaultReaperInterval = 30 * time.Second
)

var validate = validator.New()

// Load reads YAML config from path and validates it.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ListenPort picks the flag value, then the configured port, then the default.
func (c Config) ListenPort(flag string) string {
	switch {
	case flag != "":
		return flag
	case c.Server.Port != "":
		return c.Server.Port
	default:
		return DefaultPort
	}
}

func (c Config) CodeAttempts() int {
	if c.Session.CodeAttempts > 0 {
		return c.Session.CodeAttempts
	}
	return DefaultCodeAttempts
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
