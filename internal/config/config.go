package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/surveyloom/internal/utils"
)

// EnvPrefix prefixes every environment override (SURVEYLOOM_DEFAULT_MODEL, ...).
const EnvPrefix = "SURVEYLOOM"

// Global configuration structure.
type Global struct {
	APIKey          string `mapstructure:"api_key" yaml:"api_key"`
	DefaultProvider string `mapstructure:"default_provider" yaml:"default_provider" validate:"oneof=openrouter ollama"`
	DefaultModel    string `mapstructure:"default_model" yaml:"default_model" validate:"required"`
	SelectorModel   string `mapstructure:"selector_model" yaml:"selector_model" validate:"required"`

	// Writing style
	DefaultPersona string `mapstructure:"default_persona" yaml:"default_persona"`
	CustomStyle    string `mapstructure:"custom_style" yaml:"custom_style,omitempty"`
	PersonasFile   string `mapstructure:"personas_file" yaml:"personas_file,omitempty"`

	MaxToolRounds int     `mapstructure:"max_tool_rounds" yaml:"max_tool_rounds" validate:"gte=1,lte=20"`
	MaxTokens     int     `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gte=0"`
	Temperature   float64 `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	ProjectsDir   string  `mapstructure:"projects_dir" yaml:"projects_dir"`

	// Models catalog sync
	ModelsCatalogURL string `mapstructure:"models_catalog_url" yaml:"models_catalog_url,omitempty"`
	ModelsAutoSync   bool   `mapstructure:"models_auto_sync" yaml:"models_auto_sync"`
	ModelsMerge      bool   `mapstructure:"models_merge" yaml:"models_merge"`
	ModelsProvider   string `mapstructure:"models_provider" yaml:"models_provider,omitempty"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec" validate:"gte=1"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts" validate:"gte=1"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec"`

	// HTTP server
	ServerAddr     string   `mapstructure:"server_addr" yaml:"server_addr"`
	SessionSecret  string   `mapstructure:"session_secret" yaml:"session_secret,omitempty"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins,omitempty"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format" validate:"omitempty,oneof=text json"`
}

// Validate checks value ranges and enumerations.
func (c *Global) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Dir returns ~/.surveyloom.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".surveyloom"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.surveyloom/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("default_provider", "openrouter")
	v.SetDefault("default_model", "openai/gpt-4o-mini")
	v.SetDefault("selector_model", "openai/gpt-4o-mini")
	v.SetDefault("default_persona", "economist")
	v.SetDefault("custom_style", "")
	v.SetDefault("personas_file", "")
	v.SetDefault("max_tool_rounds", 5)
	v.SetDefault("max_tokens", 4096)
	v.SetDefault("temperature", 0.3)
	v.SetDefault("models_auto_sync", false)
	v.SetDefault("models_merge", true)
	v.SetDefault("models_provider", "")
	// HTTP/retry defaults: a failed turn is reported, not retried.
	v.SetDefault("http_timeout_sec", 120)
	v.SetDefault("retry_max_attempts", 1)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	// Ollama defaults
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("ollama_timeout_sec", 120)
	// Server
	v.SetDefault("server_addr", ":8080")
	v.SetDefault("session_secret", "")
	v.SetDefault("allowed_origins", []string{})
	// Logging
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// OPENROUTER_API_KEY is honored when no key is configured.
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	// Resolve projects_dir default: ~/.surveyloom/projects
	if c.ProjectsDir == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		c.ProjectsDir = filepath.Join(dir, "projects")
	}
	return &c, nil
}

// EnsureSessionSecret returns the configured cookie secret, or a random one
// for this process when none is set (sessions then do not survive restarts).
func (c *Global) EnsureSessionSecret() (string, bool, error) {
	if len(c.SessionSecret) >= 32 {
		return c.SessionSecret, false, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", false, fmt.Errorf("generate session secret: %w", err)
	}
	return hex.EncodeToString(b), true, nil
}
