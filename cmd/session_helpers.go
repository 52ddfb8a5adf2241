package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/surveyloom/internal/ai"
	cfgpkg "github.com/KaramelBytes/surveyloom/internal/config"
	"github.com/KaramelBytes/surveyloom/internal/dataset"
	"github.com/KaramelBytes/surveyloom/internal/persona"
	"github.com/KaramelBytes/surveyloom/internal/project"
	"github.com/KaramelBytes/surveyloom/internal/session"
)

const fallbackModel = "openai/gpt-4o-mini"

// sessionOverrides are per-invocation flags shared by ask, chat and serve.
type sessionOverrides struct {
	Provider      string
	OllamaHost    string
	Model         string
	SelectorModel string
	Persona       string
	Style         string
}

type runtimeOptions struct {
	ProviderFlag string
	OllamaHost   string
}

// normalizeProvider maps provider aliases onto a registered runtime.
func normalizeProvider(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ai.ProviderOpenRouter, ai.ProviderOpenAI, ai.ProviderAnthropic, ai.ProviderGoogle, ai.ProviderGemini, ai.ProviderMeta, ai.ProviderLlama:
		return ai.ProviderOpenRouter
	case ai.ProviderOllama, ai.ProviderLocal:
		return ai.ProviderOllama
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}

func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (ai.Runtime, string, error) {
	httpTimeout := 60 * time.Second
	retryMax := 1
	baseDelay := 500 * time.Millisecond
	maxDelay := 4 * time.Second
	if cfg != nil {
		if cfg.HTTPTimeoutSec > 0 {
			httpTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if cfg.RetryMaxAttempts > 0 {
			retryMax = cfg.RetryMaxAttempts
		}
		if cfg.RetryBaseDelayMs > 0 {
			baseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		}
		if cfg.RetryMaxDelayMs > 0 {
			maxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
		}
	}

	providerFlag := opts.ProviderFlag
	if providerFlag == "" && cfg != nil {
		providerFlag = cfg.DefaultProvider
	}
	providerName := normalizeProvider(providerFlag)

	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" && cfg != nil && cfg.APIKey != "" {
		apiKey = cfg.APIKey
	}

	rc := ai.RuntimeConfig{
		HTTPTimeout: httpTimeout,
		RetryMax:    retryMax,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		APIKey:      apiKey,
	}

	if providerName == ai.ProviderOllama {
		host := strings.TrimSpace(opts.OllamaHost)
		if host == "" {
			if v := os.Getenv("SURVEYLOOM_OLLAMA_HOST"); v != "" {
				host = v
			}
		}
		if host == "" && cfg != nil && cfg.OllamaHost != "" {
			host = cfg.OllamaHost
		}
		if host == "" {
			host = "http://127.0.0.1:11434"
		}
		rc.Host = host
		if v := os.Getenv("SURVEYLOOM_OLLAMA_TIMEOUT_SEC"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				rc.HTTPTimeout = time.Duration(n) * time.Second
			}
		}
		if cfg != nil && cfg.OllamaTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.OllamaTimeoutSec) * time.Second
		}
	}

	client, ok := ai.GetRuntime(providerName, rc)
	if !ok {
		return nil, providerName, fmt.Errorf("provider not supported: %s (available: %s)", providerName, strings.Join(ai.Providers(), ", "))
	}
	return client, providerName, nil
}

// loadPersonas builds the registry from the built-ins plus personas_file.
func loadPersonas(c *cfgpkg.Global) (*persona.Registry, error) {
	var extra []persona.Persona
	if c != nil && c.PersonasFile != "" {
		ps, err := persona.LoadFile(c.PersonasFile)
		if err != nil {
			return nil, err
		}
		extra = ps
	}
	return persona.NewRegistry(extra...)
}

// resolveSessionConfig layers flags over the project over global config.
func resolveSessionConfig(p *project.Project, c *cfgpkg.Global, o sessionOverrides) session.Config {
	base := session.Config{Model: fallbackModel, SelectorModel: fallbackModel, Persona: persona.Default}
	if c != nil {
		if c.DefaultModel != "" {
			base = base.WithModel(c.DefaultModel)
		}
		if c.SelectorModel != "" {
			base = base.WithSelectorModel(c.SelectorModel)
		}
		if c.DefaultPersona != "" {
			base = base.WithPersona(c.DefaultPersona, c.CustomStyle)
		}
	}
	if p != nil {
		base = p.SessionConfig(base)
	}
	if o.Model != "" {
		base = base.WithModel(o.Model)
	}
	if o.SelectorModel != "" {
		base = base.WithSelectorModel(o.SelectorModel)
	}
	if o.Persona != "" {
		base = base.WithPersona(o.Persona, o.Style)
	} else if o.Style != "" && base.Persona == persona.Custom {
		base = base.WithPersona(persona.Custom, o.Style)
	}
	return base
}

// controllerBuilder captures everything needed to open sessions over any
// store: the CLI opens one, the server opens one per browser workspace.
type controllerBuilder struct {
	runtime  ai.Runtime
	provider string
	personas *persona.Registry
	config   session.Config
	logger   *slog.Logger
}

func newControllerBuilder(p *project.Project, o sessionOverrides, logger *slog.Logger) (*controllerBuilder, error) {
	rt, provider, err := buildRuntime(cfg, runtimeOptions{ProviderFlag: o.Provider, OllamaHost: o.OllamaHost})
	if err != nil {
		return nil, err
	}
	reg, err := loadPersonas(cfg)
	if err != nil {
		return nil, err
	}
	sc := resolveSessionConfig(p, cfg, o)
	if err := sc.Validate(reg); err != nil {
		return nil, err
	}
	if !ai.SupportsTools(sc.Model) {
		fmt.Fprintf(os.Stderr, "⚠ Warning: model %s may not support tool calling; answers may ignore the survey data\n", sc.Model)
	}
	return &controllerBuilder{runtime: rt, provider: provider, personas: reg, config: sc, logger: logger}, nil
}

func (b *controllerBuilder) open(store *dataset.Store) (*session.Controller, error) {
	opts := session.Options{
		Runtime:  b.runtime,
		Provider: b.provider,
		Store:    store,
		Personas: b.personas,
		Config:   b.config,
		Logger:   b.logger,
	}
	if cfg != nil {
		opts.MaxRounds = cfg.MaxToolRounds
		opts.MaxTokens = cfg.MaxTokens
		opts.Temperature = cfg.Temperature
	}
	return session.New(opts)
}
