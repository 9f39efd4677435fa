package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for the Pola bot.
type Config struct {
	General    GeneralConfig    `json:"general"`
	Gateway    GatewayConfig    `json:"gateway"`
	Channels   ChannelsConfig   `json:"channels"`
	Dispatcher DispatcherConfig `json:"dispatcher"`
	Store      StoreConfig      `json:"store"`
	Pola       PolaConfig       `json:"pola"`
	Barcode    BarcodeConfig    `json:"barcode"`
	Engine     EngineConfig     `json:"engine"`
	Metrics    MetricsConfig    `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	LogFile  string `json:"logFile,omitempty"` // optional log file path
}

// GatewayConfig configures the HTTP server that carries the Messenger
// webhook, health check, and metrics endpoints.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type ChannelsConfig struct {
	Messenger MessengerConfig `json:"messenger"`
	Telegram  TelegramConfig  `json:"telegram"`
	CLI       CLIConfig       `json:"cli"`
}

type MessengerConfig struct {
	Enabled     bool   `json:"enabled"`
	AccessToken string `json:"accessToken,omitempty"`
	VerifyToken string `json:"verifyToken,omitempty"`
	WebhookPath string `json:"webhookPath,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

// DispatcherConfig tunes intent classification. WordListFile points to an
// optional YAML file whose entries override the built-in Polish word lists.
type DispatcherConfig struct {
	WordListFile string `json:"wordListFile,omitempty"`
}

// StoreConfig selects the conversation store backend.
type StoreConfig struct {
	Backend              string `json:"backend"` // "memory" | "sqlite"
	DBPath               string `json:"dbPath"`
	RetentionDays        int    `json:"retentionDays"`
	SweepIntervalMinutes int    `json:"sweepIntervalMinutes"`
}

type PolaConfig struct {
	APIBase        string `json:"apiBase,omitempty"`
	DeviceID       string `json:"deviceId,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type BarcodeConfig struct {
	Endpoint       string `json:"endpoint"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type EngineConfig struct {
	MaxConcurrentEvents int `json:"maxConcurrentEvents"`
	BusBufferSize       int `json:"busBufferSize"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.polabot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".polabot"
	}
	return filepath.Join(home, ".polabot")
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

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Dispatcher.WordListFile = ExpandPath(cfg.Dispatcher.WordListFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
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
			return match // Keep original if no env var and no default
		}
		return val
	})
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

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		errs = append(errs, "gateway.port must be between 0 and 65535")
	}

	switch cfg.Store.Backend {
	case "memory", "sqlite":
		// valid
	default:
		errs = append(errs, "store.backend must be one of: memory, sqlite")
	}
	if cfg.Store.Backend == "sqlite" && cfg.Store.DBPath == "" {
		errs = append(errs, "store.dbPath is required for the sqlite backend")
	}
	if cfg.Store.RetentionDays < 0 {
		errs = append(errs, "store.retentionDays must be >= 0")
	}
	if cfg.Store.SweepIntervalMinutes < 1 {
		errs = append(errs, "store.sweepIntervalMinutes must be >= 1")
	}

	if cfg.Engine.MaxConcurrentEvents < 1 || cfg.Engine.MaxConcurrentEvents > 100 {
		errs = append(errs, "engine.maxConcurrentEvents must be between 1 and 100")
	}
	if cfg.Engine.BusBufferSize < 1 {
		errs = append(errs, "engine.busBufferSize must be >= 1")
	}

	if cfg.Pola.TimeoutSeconds < 1 {
		errs = append(errs, "pola.timeoutSeconds must be >= 1")
	}
	if cfg.Barcode.TimeoutSeconds < 1 {
		errs = append(errs, "barcode.timeoutSeconds must be >= 1")
	}

	if cfg.Channels.Messenger.Enabled && cfg.Channels.Messenger.VerifyToken == "" {
		errs = append(errs, "channels.messenger.verifyToken is required when messenger is enabled")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
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
