// Package config loads flowchat settings and holds the Langflow connection
// record that the chat core resolves endpoints from.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. FLOWCHAT_SERVER__ADDR.
	EnvPrefix = "FLOWCHAT_"

	DefaultConfigPath  = "flowchat.yaml"
	DefaultOverlayPath = "flowchat.local.yaml"
	DefaultTimeoutMs   = 30000
	DefaultGraceMs     = 500
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Overlay   OverlayConfig   `koanf:"overlay"`
	Langflow  Langflow        `koanf:"langflow"`
}

type ServerConfig struct {
	Addr           string `koanf:"addr"`
	RequestTimeout string `koanf:"request_timeout"` // Duration string like "60s"
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// OverlayConfig locates the optional overlay file that patches the Langflow
// record after startup.
type OverlayConfig struct {
	Path    string `koanf:"path"`
	GraceMs int    `koanf:"grace_ms"`
	Watch   bool   `koanf:"watch"`
}

// Grace is the bounded wait for a late overlay before an unconfigured
// endpoint is reported.
func (o OverlayConfig) Grace() time.Duration {
	if o.GraceMs <= 0 {
		return 0
	}
	return time.Duration(o.GraceMs) * time.Millisecond
}

// Langflow is the connection record for the remote flow service.
type Langflow struct {
	UseEmbedWidget bool   `koanf:"use_embed_widget"`
	HostURL        string `koanf:"host_url"`
	FlowID         string `koanf:"flow_id"`
	APIEndpoint    string `koanf:"api_endpoint"` // Explicit override, wins over host_url + flow_id
	APIKey         string `koanf:"api_key"`
	TimeoutMs      int    `koanf:"timeout_ms"`
}

// Timeout returns the per-request deadline.
func (l Langflow) Timeout() time.Duration {
	return time.Duration(l.TimeoutMs) * time.Millisecond
}

// Validate checks invariants that defaults cannot repair.
func (l Langflow) Validate() error {
	if l.TimeoutMs <= 0 {
		return fmt.Errorf("langflow.timeout_ms must be positive, got %d", l.TimeoutMs)
	}
	return nil
}

// RequestTimeoutOr parses server.request_timeout, falling back to def.
func (s ServerConfig) RequestTimeoutOr(def time.Duration) time.Duration {
	if s.RequestTimeout == "" {
		return def
	}
	d, err := time.ParseDuration(s.RequestTimeout)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads defaults, then the YAML file at path (a missing file is fine),
// then FLOWCHAT_ environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use defaults and env vars
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load config from %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Langflow.APIKey = substituteEnvVars(cfg.Langflow.APIKey)

	if err := cfg.Langflow.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.addr":            ":8080",
		"server.request_timeout": "60s",
		"log.level":              "info",
		"log.format":             "json",
		"telemetry.service_name": "flowchat",
		"overlay.path":           DefaultOverlayPath,
		"overlay.grace_ms":       DefaultGraceMs,
		"langflow.timeout_ms":    DefaultTimeoutMs,
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
