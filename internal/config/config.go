package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration, loaded once at startup and treated as
// immutable afterwards.
type Config struct {
	Env      string         `yaml:"env"`      // "development" suppresses webhook auto-registration
	LogLevel string         `yaml:"logLevel"` // debug | info | warn | error
	Telegram TelegramConfig `yaml:"telegram"`
	Toggl    TogglConfig    `yaml:"toggl"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Server   ServerConfig   `yaml:"server"`
	Session  SessionConfig  `yaml:"session"`
}

type TelegramConfig struct {
	Token      string `yaml:"token"`
	WebhookURL string `yaml:"webhookUrl"` // public URL Telegram delivers updates to
	ParseMode  string `yaml:"parseMode"`
}

type TogglConfig struct {
	APIKey  string `yaml:"apiKey"`
	APIBase string `yaml:"apiBase"`
}

type GeminiConfig struct {
	APIKey  string `yaml:"apiKey"`
	APIBase string `yaml:"apiBase"`
	Model   string `yaml:"model"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	WebhookPath string `yaml:"webhookPath"`
}

type SessionConfig struct {
	DBPath string `yaml:"dbPath"`
}

func Defaults() *Config {
	return &Config{
		LogLevel: "info",
		Telegram: TelegramConfig{
			ParseMode: "Markdown",
		},
		Toggl: TogglConfig{
			APIBase: "https://api.track.toggl.com/api/v9",
		},
		Gemini: GeminiConfig{
			APIBase: "https://generativelanguage.googleapis.com/v1beta",
			Model:   "gemini-1.5-flash",
		},
		Server: ServerConfig{
			Port:        5000,
			WebhookPath: "/webhook",
		},
		Session: SessionConfig{
			DBPath: "~/.togglbot/sessions.db",
		},
	}
}

// MissingError is the fatal startup error listing every required value
// absent from the environment and config file.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return "missing required configuration: " + strings.Join(e.Vars, ", ")
}

// DefaultConfigPath returns the default config file location (~/.togglbot/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".togglbot/config.yaml"
	}
	return filepath.Join(home, ".togglbot", "config.yaml")
}

// Load builds the effective configuration: defaults, then the optional YAML
// file at path (with ${VAR} expansion), then process environment variables,
// which always win. A missing file is not an error; missing credentials are.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(ExpandPath(path))
		if err == nil {
			data = []byte(ExpandEnvVars(string(data)))
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	cfg.Session.DBPath = ExpandPath(cfg.Session.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays process environment variables onto cfg.
func applyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	setString(&cfg.Telegram.WebhookURL, "WEBHOOK_URL")
	setString(&cfg.Toggl.APIKey, "TOGGL_API_KEY")
	setString(&cfg.Toggl.APIBase, "TOGGL_API_BASE")
	setString(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Gemini.APIBase, "GEMINI_API_BASE")
	setString(&cfg.Gemini.Model, "GEMINI_MODEL")
	setString(&cfg.Env, "APP_ENV")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Session.DBPath, "SESSION_DB_PATH")

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// Validate checks the effective config. Missing credentials are reported
// together through *MissingError so the operator sees everything at once.
func Validate(cfg *Config) error {
	var missing []string
	if cfg.Telegram.Token == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.Toggl.APIKey == "" {
		missing = append(missing, "TOGGL_API_KEY")
	}
	if cfg.Gemini.APIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if cfg.Telegram.WebhookURL == "" {
		missing = append(missing, "WEBHOOK_URL")
	}
	if len(missing) > 0 {
		return &MissingError{Vars: missing}
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if !strings.HasPrefix(cfg.Server.WebhookPath, "/") {
		return fmt.Errorf("server.webhookPath must start with /, got %q", cfg.Server.WebhookPath)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset
// or empty; the default may itself be empty (${VAR:-}).
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 4 {
			return match
		}
		varName := groups[1]
		hasDefault := groups[2] != "" // the ":-..." part, present even when the default is empty
		defaultVal := groups[3]

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Sanitize returns a copy of cfg with secrets redacted, for display.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Telegram.Token = redact(cfg.Telegram.Token)
	out.Toggl.APIKey = redact(cfg.Toggl.APIKey)
	out.Gemini.APIKey = redact(cfg.Gemini.APIKey)
	return &out
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "..." + s[len(s)-3:]
}
