package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config represents the application configuration, read once at startup
type Config struct {
	Features     FeatureConfig             `json:"features"`
	LLMProviders map[string]ProviderConfig `json:"llm_providers"`
	Data         DataConfig                `json:"data"`
}

// FeatureConfig holds the flat toggle surface. Everything degrades
// gracefully when a toggle is off: mock responses, disabled persistence,
// disabled uploads.
type FeatureConfig struct {
	EnableRealAPI       bool `json:"enable_real_api"`
	EnableLocalStorage  bool `json:"enable_local_storage"`
	EnableFileUpload    bool `json:"enable_file_upload"`
	MockResponseDelayMs int  `json:"mock_response_delay_ms"`
	AutoSaveIntervalMs  int  `json:"auto_save_interval_ms"`
}

// ProviderConfig represents LLM provider configuration
type ProviderConfig struct {
	DisplayName  string   `json:"display_name,omitempty"`
	APIKey       string   `json:"api_key"`
	BaseURL      string   `json:"base_url"`
	DefaultModel string   `json:"default_model"`
	Models       []string `json:"models,omitempty"`
	Enabled      bool     `json:"enabled"`
}

// DataConfig represents data storage configuration
type DataConfig struct {
	DBPath        string `json:"db_path"`
	RetentionDays int    `json:"retention_days"`
}

// envKeyFor maps a provider key to the environment variable holding its
// credential
var envKeyFor = map[string]string{
	"openai": "OPENAI_API_KEY",
	"claude": "ANTHROPIC_API_KEY",
	"gemini": "GEMINI_API_KEY",
}

// LoadConfig loads configuration from file. API keys set in the environment
// (optionally via a .env file) override the ones in the config file.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Data.DBPath != "" {
		config.Data.DBPath = expandPath(config.Data.DBPath)
	}
	if config.Features.AutoSaveIntervalMs == 0 {
		config.Features.AutoSaveIntervalMs = 2000
	}

	// .env is optional; absence is not an error
	_ = godotenv.Load()
	if config.LLMProviders == nil {
		config.LLMProviders = map[string]ProviderConfig{}
	}
	for key, envKey := range envKeyFor {
		if value := os.Getenv(envKey); value != "" {
			provider := config.LLMProviders[key]
			provider.APIKey = value
			config.LLMProviders[key] = provider
		}
	}

	return &config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(configPath string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ and relative paths
func expandPath(path string) string {
	if len(path) == 0 {
		return path
	}

	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	absPath, err := filepath.Abs(path)
	if err == nil {
		return absPath
	}

	return path
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "./config/default.json"
	}
	return filepath.Join(configDir, "ai-chat-studio", "config.json")
}

// EnsureDefaultConfig creates a default config file if it doesn't exist
func EnsureDefaultConfig() (string, error) {
	configPath := GetConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	}

	defaultConfig := &Config{
		Features: FeatureConfig{
			EnableRealAPI:       false,
			EnableLocalStorage:  true,
			EnableFileUpload:    true,
			MockResponseDelayMs: 800,
			AutoSaveIntervalMs:  2000,
		},
		LLMProviders: map[string]ProviderConfig{
			"openai": {
				DisplayName:  "OpenAI",
				APIKey:       "",
				BaseURL:      "https://api.openai.com/v1",
				DefaultModel: "gpt-3.5-turbo",
				Models: []string{
					"gpt-4-turbo-preview",
					"gpt-4",
					"gpt-4o",
					"gpt-3.5-turbo",
				},
				Enabled: true,
			},
			"claude": {
				DisplayName:  "Claude",
				APIKey:       "",
				BaseURL:      "https://api.anthropic.com/v1",
				DefaultModel: "claude-3-5-sonnet-20241022",
				Models: []string{
					"claude-3-5-sonnet-20241022",
					"claude-3-5-haiku-20241022",
					"claude-3-opus-20240229",
				},
				Enabled: false,
			},
			"gemini": {
				DisplayName:  "Gemini",
				APIKey:       "",
				BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
				DefaultModel: "gemini-1.5-flash",
				Models: []string{
					"gemini-1.5-flash",
					"gemini-1.5-pro",
					"gemini-2.0-flash-exp",
				},
				Enabled: false,
			},
			"ollama": {
				DisplayName:  "Ollama",
				BaseURL:      "http://localhost:11434",
				DefaultModel: "llama3",
				Models: []string{
					"llama3",
					"mistral",
					"codellama",
				},
				Enabled: false,
			},
		},
		Data: DataConfig{
			DBPath:        "./data/chat.db",
			RetentionDays: 0, // 0 disables age-based cleanup
		},
	}

	if err := SaveConfig(configPath, defaultConfig); err != nil {
		return "", err
	}

	return configPath, nil
}
