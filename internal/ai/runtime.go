package ai

import "context"

// Runtime is a minimal interface implemented by AI backends/runtimes
// such as OpenRouter and local runtimes (e.g., Ollama). A runtime must honour
// ctx cancellation on every in-flight call; chat turns rely on that to abort.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used across the CLI for selection.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGoogle     = "google"
	ProviderGemini     = "gemini"
	ProviderMeta       = "meta"
	ProviderLlama      = "llama"
	ProviderOllama     = "ollama"
	ProviderLocal      = "local"
)
