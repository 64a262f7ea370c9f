// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the bridge.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultMaxMessageSize is 25 MB in bytes.
const defaultMaxMessageSize = 26214400

// defaultBodyMaxLength is the number of body characters kept in a
// notification.
const defaultBodyMaxLength = 1000

// ErrMissingNtfyServer is reported by Validate when no ntfy server URL is set.
var ErrMissingNtfyServer = errors.New("ntfy server URL is required (set NTFY_SERVER or ntfy.server)")

// Config holds the complete application configuration.
type Config struct {
	Ntfy    NtfyConfig    `yaml:"ntfy"`
	SMTP    SMTPConfig    `yaml:"smtp"`
	Webhook WebhookConfig `yaml:"webhook"`
	Body    BodyConfig    `yaml:"body"`
	TLS     TLSConfig     `yaml:"tls"`
	Logging LoggingConfig `yaml:"logging"`
}

// NtfyConfig holds the push-notification server configuration.
type NtfyConfig struct {
	Server  string        `yaml:"server"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// SMTPConfig holds SMTP listener configuration. An empty Listen disables
// the listener.
type SMTPConfig struct {
	Listen         string `yaml:"listen"`
	Hostname       string `yaml:"hostname"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	MaxMessageSize int64  `yaml:"max_message_size"`
}

// WebhookConfig holds HTTP ingress configuration. An empty Listen disables
// the listener.
type WebhookConfig struct {
	Listen string `yaml:"listen"`
}

// BodyConfig controls how much of an email body is forwarded.
type BodyConfig struct {
	MaxLength int `yaml:"max_length"`
}

// TLSConfig holds TLS certificate file paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, nil
}

// Validate reports configuration that prevents emails from being processed.
// The ntfy server is checked last, so ErrMissingNtfyServer is only returned
// when everything else is valid.
func (c *Config) Validate() error {
	if c.Body.MaxLength <= 0 {
		return fmt.Errorf("body max length must be positive, got %d", c.Body.MaxLength)
	}
	if strings.TrimSpace(c.Ntfy.Server) == "" {
		return ErrMissingNtfyServer
	}
	return nil
}

// AuthEnabled returns true if both SMTP username and password are set.
func (c *Config) AuthEnabled() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Ntfy.Timeout = 30 * time.Second
	c.SMTP.Listen = ":2525"
	c.SMTP.Hostname = "localhost"
	c.SMTP.MaxMessageSize = defaultMaxMessageSize
	c.Webhook.Listen = ":8080"
	c.Body.MaxLength = defaultBodyMaxLength
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("NTFY_SERVER"); v != "" {
		c.Ntfy.Server = v
	}
	if v := os.Getenv("NTFY_TOKEN"); v != "" {
		c.Ntfy.Token = v
	}
	if v := os.Getenv("NTFY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Ntfy.Timeout = d
		}
	}

	if v := os.Getenv("SMTP_LISTEN"); v != "" {
		c.SMTP.Listen = v
	}
	if v := os.Getenv("SMTP_HOSTNAME"); v != "" {
		c.SMTP.Hostname = v
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		c.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_MAX_MESSAGE_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.SMTP.MaxMessageSize = size
		}
	}

	if v := os.Getenv("WEBHOOK_LISTEN"); v != "" {
		c.Webhook.Listen = v
	}

	if v := os.Getenv("BODY_MAX_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Body.MaxLength = n
		}
	}

	if v := os.Getenv("TLS_CERT_FILE"); v != "" {
		c.TLS.CertFile = v
	}
	if v := os.Getenv("TLS_KEY_FILE"); v != "" {
		c.TLS.KeyFile = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}
