// Package config loads chatmeter configuration from the environment and
// optional YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	DeepSeekAPIKey  string
	Settings        Settings
	Catalog         *Catalog
	ConfigDir       string
}

// Settings holds service-level configuration parsed from the environment.
type Settings struct {
	StorePath        string        `env:"CHATMETER_STORE_PATH"`
	ProviderTimeout  time.Duration `env:"CHATMETER_PROVIDER_TIMEOUT" envDefault:"60s"`
	DefaultProvider  string        `env:"CHATMETER_DEFAULT_PROVIDER" envDefault:"mock"`
	DefaultModel     string        `env:"CHATMETER_DEFAULT_MODEL"`
	ProviderRPS      float64       `env:"CHATMETER_PROVIDER_RPS" envDefault:"5"`
	ProviderBurst    int           `env:"CHATMETER_PROVIDER_BURST" envDefault:"10"`
	StreamChunkBytes int           `env:"CHATMETER_STREAM_CHUNK_BYTES" envDefault:"64"`
}

// FileConfig represents the structure of ~/.chatmeter/config.yaml
type FileConfig struct {
	APIKeys APIKeysConfig `yaml:"api_keys"`
}

// APIKeysConfig holds API key configuration from file.
type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic"`
	OpenAI    string `yaml:"openai"`
	Google    string `yaml:"google"`
	DeepSeek  string `yaml:"deepseek"`
}

// Load reads configuration from config files and environment variables.
// Environment variables take precedence over file configuration.
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	fileConfig := loadFileConfig(filepath.Join(configDir, "config.yaml"))

	cfg := &Config{
		AnthropicAPIKey: getEnvOrDefault("ANTHROPIC_API_KEY", fileConfig.APIKeys.Anthropic),
		OpenAIAPIKey:    getEnvOrDefault("OPENAI_API_KEY", fileConfig.APIKeys.OpenAI),
		GoogleAPIKey:    getEnvOrDefault("GOOGLE_API_KEY", fileConfig.APIKeys.Google),
		DeepSeekAPIKey:  getEnvOrDefault("DEEPSEEK_API_KEY", fileConfig.APIKeys.DeepSeek),
		ConfigDir:       configDir,
	}

	if err := env.Parse(&cfg.Settings); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Settings.StorePath == "" {
		cfg.Settings.StorePath = filepath.Join(configDir, "chatmeter.db")
	}

	catalogPath := filepath.Join(configDir, "catalog.yaml")
	if _, err := os.Stat(catalogPath); err == nil {
		catalog, err := LoadCatalog(catalogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		cfg.Catalog = catalog
	} else {
		cfg.Catalog = DefaultCatalog()
	}

	return cfg, nil
}

// LoadWithCatalogFile loads config with a specific catalog file.
func LoadWithCatalogFile(catalogPath string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	catalog, err := LoadCatalog(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog from %s: %w", catalogPath, err)
	}
	cfg.Catalog = catalog

	return cfg, nil
}

// HasAdapter returns true if the API key for the given adapter is configured.
func (c *Config) HasAdapter(name string) bool {
	switch name {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "google":
		return c.GoogleAPIKey != ""
	case "deepseek":
		return c.DeepSeekAPIKey != ""
	default:
		return false
	}
}

// loadFileConfig reads the config file, returning empty config if not found.
func loadFileConfig(path string) *FileConfig {
	cfg := &FileConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, cfg)
	return cfg
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".chatmeter")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
