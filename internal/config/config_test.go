package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// allEnvVars lists every variable read by applyEnvVars.
var allEnvVars = []string{
	"NTFY_SERVER", "NTFY_TOKEN", "NTFY_TIMEOUT",
	"SMTP_LISTEN", "SMTP_HOSTNAME", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_MAX_MESSAGE_SIZE",
	"WEBHOOK_LISTEN", "BODY_MAX_LENGTH",
	"TLS_CERT_FILE", "TLS_KEY_FILE", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range allEnvVars {
		t.Setenv(env, "")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Ntfy.Server != "" {
		t.Errorf("Ntfy.Server: got %q, want empty", cfg.Ntfy.Server)
	}
	if cfg.Ntfy.Timeout != 30*time.Second {
		t.Errorf("Ntfy.Timeout: got %v, want %v", cfg.Ntfy.Timeout, 30*time.Second)
	}
	if cfg.SMTP.Listen != ":2525" {
		t.Errorf("SMTP.Listen: got %q, want %q", cfg.SMTP.Listen, ":2525")
	}
	if cfg.SMTP.Hostname != "localhost" {
		t.Errorf("SMTP.Hostname: got %q, want %q", cfg.SMTP.Hostname, "localhost")
	}
	if cfg.SMTP.Username != "" {
		t.Errorf("SMTP.Username: got %q, want empty", cfg.SMTP.Username)
	}
	if cfg.SMTP.MaxMessageSize != 26214400 {
		t.Errorf("SMTP.MaxMessageSize: got %d, want %d", cfg.SMTP.MaxMessageSize, 26214400)
	}
	if cfg.Webhook.Listen != ":8080" {
		t.Errorf("Webhook.Listen: got %q, want %q", cfg.Webhook.Listen, ":8080")
	}
	if cfg.Body.MaxLength != 1000 {
		t.Errorf("Body.MaxLength: got %d, want %d", cfg.Body.MaxLength, 1000)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	t.Setenv("NTFY_SERVER", "https://ntfy.example.com")
	t.Setenv("NTFY_TOKEN", "tk_abc")
	t.Setenv("NTFY_TIMEOUT", "5s")
	t.Setenv("SMTP_LISTEN", ":9025")
	t.Setenv("SMTP_HOSTNAME", "mx.example.com")
	t.Setenv("SMTP_USERNAME", "admin")
	t.Setenv("SMTP_PASSWORD", "secret123")
	t.Setenv("SMTP_MAX_MESSAGE_SIZE", "10485760")
	t.Setenv("WEBHOOK_LISTEN", "127.0.0.1:9090")
	t.Setenv("BODY_MAX_LENGTH", "500")
	t.Setenv("TLS_CERT_FILE", "/certs/cert.pem")
	t.Setenv("TLS_KEY_FILE", "/certs/key.pem")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Ntfy.Server != "https://ntfy.example.com" {
		t.Errorf("Ntfy.Server: got %q, want %q", cfg.Ntfy.Server, "https://ntfy.example.com")
	}
	if cfg.Ntfy.Token != "tk_abc" {
		t.Errorf("Ntfy.Token: got %q, want %q", cfg.Ntfy.Token, "tk_abc")
	}
	if cfg.Ntfy.Timeout != 5*time.Second {
		t.Errorf("Ntfy.Timeout: got %v, want %v", cfg.Ntfy.Timeout, 5*time.Second)
	}
	if cfg.SMTP.Listen != ":9025" {
		t.Errorf("SMTP.Listen: got %q, want %q", cfg.SMTP.Listen, ":9025")
	}
	if cfg.SMTP.Hostname != "mx.example.com" {
		t.Errorf("SMTP.Hostname: got %q, want %q", cfg.SMTP.Hostname, "mx.example.com")
	}
	if cfg.SMTP.Username != "admin" {
		t.Errorf("SMTP.Username: got %q, want %q", cfg.SMTP.Username, "admin")
	}
	if cfg.SMTP.Password != "secret123" {
		t.Errorf("SMTP.Password: got %q, want %q", cfg.SMTP.Password, "secret123")
	}
	if cfg.SMTP.MaxMessageSize != 10485760 {
		t.Errorf("SMTP.MaxMessageSize: got %d, want %d", cfg.SMTP.MaxMessageSize, 10485760)
	}
	if cfg.Webhook.Listen != "127.0.0.1:9090" {
		t.Errorf("Webhook.Listen: got %q, want %q", cfg.Webhook.Listen, "127.0.0.1:9090")
	}
	if cfg.Body.MaxLength != 500 {
		t.Errorf("Body.MaxLength: got %d, want %d", cfg.Body.MaxLength, 500)
	}
	if cfg.TLS.CertFile != "/certs/cert.pem" {
		t.Errorf("TLS.CertFile: got %q, want %q", cfg.TLS.CertFile, "/certs/cert.pem")
	}
	if cfg.TLS.KeyFile != "/certs/key.pem" {
		t.Errorf("TLS.KeyFile: got %q, want %q", cfg.TLS.KeyFile, "/certs/key.pem")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
		ok      bool
	}{
		{
			name: "valid",
			cfg:  Config{Ntfy: NtfyConfig{Server: "https://ntfy.sh"}, Body: BodyConfig{MaxLength: 1000}},
			ok:   true,
		},
		{
			name:    "missing server",
			cfg:     Config{Body: BodyConfig{MaxLength: 1000}},
			wantErr: ErrMissingNtfyServer,
		},
		{
			name:    "blank server",
			cfg:     Config{Ntfy: NtfyConfig{Server: "  "}, Body: BodyConfig{MaxLength: 1000}},
			wantErr: ErrMissingNtfyServer,
		},
		{
			name: "non-positive body length",
			cfg:  Config{Ntfy: NtfyConfig{Server: "https://ntfy.sh"}},
		},
		{
			name: "bad body length reported before missing server",
			cfg:  Config{Body: BodyConfig{MaxLength: -5}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.ok {
				if err != nil {
					t.Errorf("Validate(): unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate(): expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate(): got %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && errors.Is(err, ErrMissingNtfyServer) {
				t.Errorf("Validate(): got %v, want body length error", err)
			}
		})
	}
}

func TestAuthEnabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		username string
		password string
		expect   bool
	}{
		{name: "both set", username: "user", password: "pass", expect: true},
		{name: "username only", username: "user", password: "", expect: false},
		{name: "password only", username: "", password: "pass", expect: false},
		{name: "neither set", username: "", password: "", expect: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{SMTP: SMTPConfig{Username: tt.username, Password: tt.password}}
			if got := cfg.AuthEnabled(); got != tt.expect {
				t.Errorf("AuthEnabled(): got %v, want %v", got, tt.expect)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	yamlContent := `
ntfy:
  server: "https://ntfy.yaml.example"
  token: "yaml-token"
  timeout: 10s
smtp:
  listen: ":3025"
  username: "yamluser"
  password: "yamlpass"
  max_message_size: 5242880
webhook:
  listen: ""
body:
  max_length: 250
tls:
  cert_file: "/yaml/cert.pem"
  key_file: "/yaml/key.pem"
logging:
  level: "warn"
`

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	// Clear env vars to ensure YAML values come through
	clearEnv(t)

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Ntfy.Server != "https://ntfy.yaml.example" {
		t.Errorf("Ntfy.Server: got %q, want %q", cfg.Ntfy.Server, "https://ntfy.yaml.example")
	}
	if cfg.Ntfy.Token != "yaml-token" {
		t.Errorf("Ntfy.Token: got %q, want %q", cfg.Ntfy.Token, "yaml-token")
	}
	if cfg.Ntfy.Timeout != 10*time.Second {
		t.Errorf("Ntfy.Timeout: got %v, want %v", cfg.Ntfy.Timeout, 10*time.Second)
	}
	if cfg.SMTP.Listen != ":3025" {
		t.Errorf("SMTP.Listen: got %q, want %q", cfg.SMTP.Listen, ":3025")
	}
	if cfg.SMTP.Username != "yamluser" {
		t.Errorf("SMTP.Username: got %q, want %q", cfg.SMTP.Username, "yamluser")
	}
	if cfg.SMTP.MaxMessageSize != 5242880 {
		t.Errorf("SMTP.MaxMessageSize: got %d, want %d", cfg.SMTP.MaxMessageSize, 5242880)
	}
	if cfg.SMTP.Hostname != "localhost" {
		t.Errorf("SMTP.Hostname: got %q, want default %q", cfg.SMTP.Hostname, "localhost")
	}
	if cfg.Webhook.Listen != "" {
		t.Errorf("Webhook.Listen: got %q, want empty (disabled)", cfg.Webhook.Listen)
	}
	if cfg.Body.MaxLength != 250 {
		t.Errorf("Body.MaxLength: got %d, want %d", cfg.Body.MaxLength, 250)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "warn")
	}
}

func TestLoadFromFile_EnvOverridesYAML(t *testing.T) {
	yamlContent := `
ntfy:
  server: "https://ntfy.yaml.example"
smtp:
  listen: ":3025"
  username: "yamluser"
logging:
  level: "warn"
`

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	clearEnv(t)
	t.Setenv("NTFY_SERVER", "https://ntfy.env.example")
	t.Setenv("SMTP_LISTEN", ":9025")
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Env var should override YAML
	if cfg.Ntfy.Server != "https://ntfy.env.example" {
		t.Errorf("Ntfy.Server: got %q, want %q (env should override YAML)", cfg.Ntfy.Server, "https://ntfy.env.example")
	}
	if cfg.SMTP.Listen != ":9025" {
		t.Errorf("SMTP.Listen: got %q, want %q (env should override YAML)", cfg.SMTP.Listen, ":9025")
	}
	// Empty env var should NOT override YAML value
	if cfg.SMTP.Username != "yamluser" {
		t.Errorf("SMTP.Username: got %q, want %q (empty env should not override YAML)", cfg.SMTP.Username, "yamluser")
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level: got %q, want %q (env should override YAML)", cfg.Logging.Level, "error")
	}
}

func TestLoadFromFile_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("{{invalid yaml"), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidNumbersKeepDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMTP_MAX_MESSAGE_SIZE", "not-a-number")
	t.Setenv("BODY_MAX_LENGTH", "lots")
	t.Setenv("NTFY_TIMEOUT", "forever")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Invalid values should be ignored, keeping the defaults
	if cfg.SMTP.MaxMessageSize != 26214400 {
		t.Errorf("SMTP.MaxMessageSize: got %d, want %d", cfg.SMTP.MaxMessageSize, 26214400)
	}
	if cfg.Body.MaxLength != 1000 {
		t.Errorf("Body.MaxLength: got %d, want %d", cfg.Body.MaxLength, 1000)
	}
	if cfg.Ntfy.Timeout != 30*time.Second {
		t.Errorf("Ntfy.Timeout: got %v, want %v", cfg.Ntfy.Timeout, 30*time.Second)
	}
}
