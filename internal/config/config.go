package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for the Dime agent.
type Config struct {
	General GeneralConfig `json:"general"`
	Source  SourceConfig  `json:"source"`
	Gemini  GeminiConfig  `json:"gemini"`
	Store   StoreConfig   `json:"store"`
	Chat    ChatConfig    `json:"chat"`
	Ledger  LedgerConfig  `json:"ledger"`
	API     APIConfig     `json:"api"`
}

type GeneralConfig struct {
	LogLevel            string `json:"logLevel"`
	LogFile             string `json:"logFile,omitempty"` // optional log file path
	PollIntervalSeconds int    `json:"pollIntervalSeconds"`
}

// SourceConfig selects and configures the inbound message provider.
type SourceConfig struct {
	Provider       string         `json:"provider"` // "imessage" | "telegram"
	MonitoredPhone string         `json:"monitoredPhone"`
	MessageLimit   int            `json:"messageLimit"` // recent-message query window
	ChatDBPath     string         `json:"chatDBPath,omitempty"`
	Telegram       TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`
}

type GeminiConfig struct {
	APIKey            string `json:"apiKey"`
	Model             string `json:"model"`
	MaxRetries        int    `json:"maxRetries"`        // extra attempts after a rate limit
	RetryDelaySeconds int    `json:"retryDelaySeconds"` // fixed pause between attempts
}

type StoreConfig struct {
	DBPath string `json:"dbPath"`
}

type ChatConfig struct {
	BackendURL string `json:"backendUrl"`
	UserID     string `json:"userId"`
}

type LedgerConfig struct {
	URL             string `json:"url"`
	CategoryMapPath string `json:"categoryMapPath,omitempty"` // optional YAML override
}

type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnvVars substitutes ${VAR} and ${VAR:-default} references in input.
// Unset variables without a default are left untouched.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

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

// ExpandPath resolves a leading ~/ to the user's home directory.
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

// DefaultConfigDir returns ~/.dimeagent.
func DefaultConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dimeagent")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.Source.ChatDBPath = ExpandPath(cfg.Source.ChatDBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Ledger.CategoryMapPath = ExpandPath(cfg.Ledger.CategoryMapPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has usable values. These are the only
// errors fatal to the process; everything past startup is handled per-cycle.
func Validate(cfg *Config) error {
	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("general.logLevel must be one of debug|info|warn|error, got %q", cfg.General.LogLevel)
	}
	if cfg.General.PollIntervalSeconds < 1 {
		return fmt.Errorf("general.pollIntervalSeconds must be >= 1, got %d", cfg.General.PollIntervalSeconds)
	}

	switch cfg.Source.Provider {
	case "imessage":
		if cfg.Source.ChatDBPath == "" {
			return fmt.Errorf("source.chatDBPath is required for the imessage provider")
		}
	case "telegram":
		if unresolved(cfg.Source.Telegram.Token) {
			return fmt.Errorf("source.telegram.token is not set")
		}
	default:
		return fmt.Errorf("source.provider must be imessage or telegram, got %q", cfg.Source.Provider)
	}
	if cfg.Source.MessageLimit < 1 {
		return fmt.Errorf("source.messageLimit must be >= 1, got %d", cfg.Source.MessageLimit)
	}

	if unresolved(cfg.Gemini.APIKey) {
		return fmt.Errorf("gemini.apiKey is not set (export GEMINI_API_KEY)")
	}
	if cfg.Gemini.MaxRetries < 0 {
		return fmt.Errorf("gemini.maxRetries must be >= 0, got %d", cfg.Gemini.MaxRetries)
	}

	if cfg.Store.DBPath == "" {
		return fmt.Errorf("store.dbPath is required")
	}

	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port must be 1-65535, got %d", cfg.API.Port)
	}

	return nil
}

// unresolved reports whether a secret is empty or still holds an
// unexpanded ${VAR} placeholder.
func unresolved(v string) bool {
	return v == "" || strings.HasPrefix(v, "${")
}
