package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all Puente environment variables.
const EnvPrefix = "PUENTE_"

// Provider modes.
const (
	ProviderLive      = "live"
	ProviderSimulated = "simulated"
)

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr            string `yaml:"listen_addr"`
	DBPath                string `yaml:"db_path"`
	AudioDir              string `yaml:"audio_dir"`
	Provider              string `yaml:"provider"`
	OpenAIModel           string `yaml:"openai_model"`
	RealtimeTimeout       string `yaml:"realtime_timeout"`
	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`
	BackupInterval        string `yaml:"backup_interval"`

	// Secrets — env vars only, never serialized to YAML.
	OpenAIAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:            ":8080",
		DBPath:                "data/puente.db",
		AudioDir:              "data/audio",
		Provider:              ProviderLive,
		OpenAIModel:           "gpt-4o",
		RealtimeTimeout:       "10s",
		GoogleCredentialsFile: "./service-account.json",
		BackupInterval:        "1h",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// Simulated reports whether the simulated provider is selected, either
// explicitly or because no API key is available for the live one.
func (c *Config) Simulated() bool {
	if c.Provider == ProviderSimulated {
		return true
	}
	return c.OpenAIAPIKey == ""
}

// ParsedRealtimeTimeout returns RealtimeTimeout as a time.Duration,
// falling back to 10s if the value is invalid.
func (c *Config) ParsedRealtimeTimeout() time.Duration {
	d, err := time.ParseDuration(c.RealtimeTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// ParsedBackupInterval returns BackupInterval as a time.Duration,
// falling back to 1h if the value is invalid.
func (c *Config) ParsedBackupInterval() time.Duration {
	d, err := time.ParseDuration(c.BackupInterval)
	if err != nil {
		return time.Hour
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "AUDIO_DIR"); v != "" {
		cfg.AudioDir = v
	}
	if v := os.Getenv(EnvPrefix + "PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv(EnvPrefix + "OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}
	if v := os.Getenv(EnvPrefix + "REALTIME_TIMEOUT"); v != "" {
		cfg.RealtimeTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
	if v := os.Getenv(EnvPrefix + "BACKUP_INTERVAL"); v != "" {
		cfg.BackupInterval = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.Provider != ProviderLive && cfg.Provider != ProviderSimulated {
		warnings = append(warnings, fmt.Sprintf("Unknown provider %q — using %q.", cfg.Provider, ProviderLive))
		cfg.Provider = ProviderLive
	}
	if cfg.Provider == ProviderLive && cfg.OpenAIAPIKey == "" {
		warnings = append(warnings, "OpenAI API key not configured — falling back to the simulated provider. Set "+EnvPrefix+"OPENAI_API_KEY.")
	}
	if _, err := time.ParseDuration(cfg.RealtimeTimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid realtime_timeout %q — using default 10s.", cfg.RealtimeTimeout))
	}
	if _, err := time.ParseDuration(cfg.BackupInterval); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid backup_interval %q — using default 1h.", cfg.BackupInterval))
	}

	return warnings
}
