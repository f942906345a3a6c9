package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samsaffron/term-chat/internal/llm"
	"github.com/spf13/viper"
)

const appName = "term-chat"

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("no API key configured: set api_key in config.yaml, TERM_CHAT_API_KEY or OPENROUTER_API_KEY")

type Config struct {
	APIKey        string      `mapstructure:"api_key" yaml:"api_key"`
	BaseURL       string      `mapstructure:"base_url" yaml:"base_url"`
	Models        []string    `mapstructure:"models" yaml:"models"`
	Temperature   float64     `mapstructure:"temperature" yaml:"temperature"`
	MaxIterations int         `mapstructure:"max_iterations" yaml:"max_iterations"`
	SystemPrompt  string      `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
	AppURL        string      `mapstructure:"app_url" yaml:"app_url,omitempty"`
	AppTitle      string      `mapstructure:"app_title" yaml:"app_title,omitempty"`
	Debug         bool        `mapstructure:"debug" yaml:"debug"`
	Tools         ToolsConfig `mapstructure:"tools" yaml:"tools"`
}

// ToolsConfig configures the local tools offered to the model.
type ToolsConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	ShellTimeout      int  `mapstructure:"shell_timeout" yaml:"shell_timeout"`           // Seconds
	OverflowThreshold int  `mapstructure:"overflow_threshold" yaml:"overflow_threshold"` // Characters
}

// Load reads config.yaml from the config directory (or the working
// directory) and applies TERM_CHAT_* environment overrides.
func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}
	return LoadFrom(configPath, ".")
}

// LoadFrom is Load with explicit search paths.
func LoadFrom(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("TERM_CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults. Every key needs one so AutomaticEnv can see it.
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", llm.DefaultBaseURL)
	v.SetDefault("models", append([]string(nil), llm.DefaultModels...))
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_iterations", llm.DefaultMaxIterations)
	v.SetDefault("system_prompt", "")
	v.SetDefault("app_url", "https://github.com/samsaffron/term-chat")
	v.SetDefault("app_title", appName)
	v.SetDefault("debug", false)
	v.SetDefault("tools.enabled", true)
	v.SetDefault("tools.shell_timeout", 30)
	v.SetDefault("tools.overflow_threshold", 500)

	// Read config file (optional - won't error if missing)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveCredentials(&cfg)
	return &cfg, nil
}

// resolveCredentials expands $VAR references and falls back to
// OPENROUTER_API_KEY when no key is configured.
func resolveCredentials(cfg *Config) {
	cfg.APIKey = expandEnv(cfg.APIKey)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	cfg.BaseURL = expandEnv(cfg.BaseURL)
	cfg.AppURL = expandEnv(cfg.AppURL)
	cfg.AppTitle = expandEnv(cfg.AppTitle)
}

// Validate reports configuration that makes a chat client impossible.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if _, err := llm.NewModelRegistry(c.Models); err != nil {
		return err
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", c.Temperature)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	return nil
}

// Masked returns a copy safe for display, with the API key obscured.
func (c *Config) Masked() Config {
	out := *c
	out.Models = append([]string(nil), c.Models...)
	out.APIKey = maskKey(c.APIKey)
	return out
}

func maskKey(key string) string {
	switch {
	case key == "":
		return ""
	case len(key) <= 8:
		return "****"
	default:
		return key[:4] + "..." + key[len(key)-4:]
	}
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for term-chat.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, appName), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", appName), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// GetLogDir returns the directory debug logs are written to.
func GetLogDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "logs"), nil
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
