package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for vocabot.
type Config struct {
	General   GeneralConfig   `yaml:"general"`
	Whitelist WhitelistConfig `yaml:"whitelist"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Channels  ChannelsConfig  `yaml:"channels"`
	History   HistoryConfig   `yaml:"history"`
}

type GeneralConfig struct {
	LogLevel              string `yaml:"logLevel"`
	CommandPrefix         string `yaml:"commandPrefix"`
	MaxConcurrentMessages int    `yaml:"maxConcurrentMessages"`
}

// WhitelistConfig gates the bot on sender phone numbers. An empty Numbers
// list denies everyone unless AllowAll is set; the flag is explicit rather
// than an inferred default.
type WhitelistConfig struct {
	Numbers  []string `yaml:"numbers"`
	AllowAll bool     `yaml:"allowAll"`
}

// AnalysisConfig configures the Gemini analysis engine. An empty APIKey
// leaves the engine unavailable; voice handlers degrade to a fixed
// configuration-error reply.
type AnalysisConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type ChannelsConfig struct {
	Whatsmeow WhatsmeowConfig `yaml:"whatsmeow"`
	CloudAPI  CloudAPIConfig  `yaml:"cloudapi"`
}

// WhatsmeowConfig configures the native WhatsApp Web socket binding.
// DBPath holds the pairing credential store (sqlite).
type WhatsmeowConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"dbPath"`
}

// CloudAPIConfig configures the WhatsApp Business Cloud API webhook binding.
type CloudAPIConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddr    string `yaml:"listenAddr"`
	WebhookPath   string `yaml:"webhookPath"`
	AppSecret     string `yaml:"appSecret"`
	AccessToken   string `yaml:"accessToken"`
	VerifyToken   string `yaml:"verifyToken"`
	PhoneNumberID string `yaml:"phoneNumberId"`
}

// HistoryConfig configures the sqlite analysis journal.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"dbPath"`
}

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			CommandPrefix:         "!",
			MaxConcurrentMessages: 5,
		},
		Whitelist: WhitelistConfig{
			Numbers:  nil,
			AllowAll: false,
		},
		Analysis: AnalysisConfig{
			Model: "gemini-2.0-flash",
		},
		Channels: ChannelsConfig{
			Whatsmeow: WhatsmeowConfig{
				Enabled: true,
				DBPath:  "~/.vocabot/session.db",
			},
			CloudAPI: CloudAPIConfig{
				Enabled:     false,
				ListenAddr:  "127.0.0.1:8080",
				WebhookPath: "/webhook/whatsapp",
			},
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  "~/.vocabot/history.db",
		},
	}
}

func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vocabot"
	}
	return filepath.Join(home, ".vocabot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
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
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Channels.Whatsmeow.DBPath = ExpandPath(cfg.Channels.Whatsmeow.DBPath)
	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)

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

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
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
			return match
		}
		return val
	})
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.CommandPrefix == "" {
		errs = append(errs, "general.commandPrefix must not be empty")
	}
	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}

	for _, n := range cfg.Whitelist.Numbers {
		if strings.TrimSpace(n) == "" {
			errs = append(errs, "whitelist.numbers must not contain empty entries")
			break
		}
	}

	if cfg.Channels.CloudAPI.Enabled {
		if cfg.Channels.CloudAPI.AccessToken == "" {
			errs = append(errs, "channels.cloudapi.accessToken is required when the channel is enabled")
		}
		if cfg.Channels.CloudAPI.PhoneNumberID == "" {
			errs = append(errs, "channels.cloudapi.phoneNumberId is required when the channel is enabled")
		}
	}
	if cfg.Channels.Whatsmeow.Enabled && cfg.Channels.Whatsmeow.DBPath == "" {
		errs = append(errs, "channels.whatsmeow.dbPath is required when the channel is enabled")
	}
	if cfg.History.Enabled && cfg.History.DBPath == "" {
		errs = append(errs, "history.dbPath is required when history is enabled")
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
