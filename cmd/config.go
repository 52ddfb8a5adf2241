package cmd

import (
	"fmt"
	"strconv"
	"strings"

	cfgpkg "github.com/KaramelBytes/surveyloom/internal/config"
	"github.com/KaramelBytes/surveyloom/internal/logging"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set surveyloom configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(out, "No config loaded")
			return nil
		}
		fmt.Fprintf(out, "api_key: %s\n", mask(cfg.APIKey))
		fmt.Fprintf(out, "default_provider: %s\n", cfg.DefaultProvider)
		fmt.Fprintf(out, "default_model: %s\n", cfg.DefaultModel)
		fmt.Fprintf(out, "selector_model: %s\n", cfg.SelectorModel)
		fmt.Fprintf(out, "default_persona: %s\n", cfg.DefaultPersona)
		if cfg.CustomStyle != "" {
			fmt.Fprintf(out, "custom_style: %s\n", cfg.CustomStyle)
		}
		if cfg.PersonasFile != "" {
			fmt.Fprintf(out, "personas_file: %s\n", cfg.PersonasFile)
		}
		fmt.Fprintf(out, "max_tool_rounds: %d\n", cfg.MaxToolRounds)
		fmt.Fprintf(out, "max_tokens: %d\n", cfg.MaxTokens)
		fmt.Fprintf(out, "temperature: %.3f\n", cfg.Temperature)
		fmt.Fprintf(out, "projects_dir: %s\n", cfg.ProjectsDir)
		fmt.Fprintf(out, "http_timeout_sec: %d\n", cfg.HTTPTimeoutSec)
		fmt.Fprintf(out, "retry_max_attempts: %d\n", cfg.RetryMaxAttempts)
		if cfg.DefaultProvider == "ollama" {
			fmt.Fprintf(out, "ollama_host: %s\n", cfg.OllamaHost)
		}
		fmt.Fprintf(out, "server_addr: %s\n", cfg.ServerAddr)
		fmt.Fprintf(out, "session_secret: %s\n", mask(cfg.SessionSecret))
		if len(cfg.AllowedOrigins) > 0 {
			fmt.Fprintf(out, "allowed_origins: %s\n", strings.Join(cfg.AllowedOrigins, ","))
		}
		fmt.Fprintf(out, "log_level: %s\n", cfg.LogLevel)
		fmt.Fprintf(out, "log_format: %s\n", cfg.LogFormat)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := applyConfigValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func applyConfigValue(c *cfgpkg.Global, key, val string) error {
	switch key {
	case "api_key":
		c.APIKey = val
	case "default_model":
		c.DefaultModel = val
	case "selector_model":
		c.SelectorModel = val
	case "default_provider":
		switch strings.ToLower(val) {
		case "openrouter":
			c.DefaultProvider = "openrouter"
		case "ollama", "local":
			c.DefaultProvider = "ollama"
		default:
			return fmt.Errorf("invalid default_provider: %s (use openrouter or ollama)", val)
		}
	case "default_persona":
		reg, err := loadPersonas(c)
		if err != nil {
			return err
		}
		if !reg.Known(val) {
			return fmt.Errorf("unknown persona %q (available: %s)", val, strings.Join(reg.IDs(), ", "))
		}
		c.DefaultPersona = val
	case "custom_style":
		c.CustomStyle = val
	case "personas_file":
		c.PersonasFile = val
	case "max_tool_rounds":
		i, err := strconv.Atoi(val)
		if err != nil || i < 1 {
			return fmt.Errorf("invalid int for max_tool_rounds: %v", val)
		}
		c.MaxToolRounds = i
	case "max_tokens":
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid int for max_tokens: %w", err)
		}
		c.MaxTokens = i
	case "temperature":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid float for temperature: %w", err)
		}
		c.Temperature = f
	case "projects_dir":
		c.ProjectsDir = val
	case "http_timeout_sec":
		i, err := strconv.Atoi(val)
		if err != nil || i < 1 {
			return fmt.Errorf("invalid int for http_timeout_sec: %v", val)
		}
		c.HTTPTimeoutSec = i
	case "retry_max_attempts":
		i, err := strconv.Atoi(val)
		if err != nil || i < 1 {
			return fmt.Errorf("invalid int for retry_max_attempts: %v", val)
		}
		c.RetryMaxAttempts = i
	case "ollama_host":
		c.OllamaHost = val
	case "server_addr":
		c.ServerAddr = val
	case "session_secret":
		if len(val) < 32 {
			return fmt.Errorf("session_secret must be at least 32 characters")
		}
		c.SessionSecret = val
	case "allowed_origins":
		var origins []string
		for _, o := range strings.Split(val, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.AllowedOrigins = origins
	case "log_level":
		if _, err := logging.ParseLevel(val); err != nil {
			return err
		}
		c.LogLevel = strings.ToLower(val)
		if c.LogLevel == "warning" {
			c.LogLevel = "warn"
		}
	case "log_format":
		switch val {
		case logging.FormatText, logging.FormatJSON:
			c.LogFormat = val
		default:
			return fmt.Errorf("invalid log_format: %s (use text or json)", val)
		}
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
