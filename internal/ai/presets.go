package ai

// Model roles in the two-pass chat pipeline.
const (
	RoleSelector = "selector"
	RoleWriter   = "writer"
)

// PresetCatalog returns a built-in curated catalog for a known provider.
// The catalog can be merged or used to replace the in-memory catalog.
func PresetCatalog(provider string) (map[string]ModelInfo, bool) {
	var names []string
	switch provider {
	case ProviderOpenRouter:
		names = []string{"openai/gpt-4o-mini", "openai/gpt-4o", "openai/gpt-4.1-mini", "anthropic/claude-3.5-sonnet", "google/gemini-2.0-flash-001"}
	case ProviderOpenAI:
		names = []string{"openai/gpt-4o-mini", "openai/gpt-4o", "openai/gpt-4.1-mini"}
	case ProviderAnthropic:
		names = []string{"anthropic/claude-3.5-sonnet", "anthropic/claude-3-haiku"}
	case ProviderGoogle, ProviderGemini:
		names = []string{"google/gemini-2.0-flash-001", "google/gemini-1.5-pro"}
	case ProviderMeta, ProviderLlama:
		names = []string{"meta-llama/llama-3.1-70b-instruct"}
	case ProviderOllama, ProviderLocal:
		names = []string{"llama3.1:8b", "qwen2.5:7b-instruct", "mistral-nemo:latest"}
	default:
		return nil, false
	}
	out := make(map[string]ModelInfo, len(names))
	for _, n := range names {
		if mi, ok := LookupModel(n); ok {
			out[n] = mi
		}
	}
	return out, true
}

// RecommendModel returns the suggested model for a pipeline role. The
// selector pass is a short structured call, so it gets the cheap tier; the
// writer needs reliable tool calling. Empty provider means openrouter.
func RecommendModel(provider, role string) (string, bool) {
	if provider == "" {
		provider = ProviderOpenRouter
	}
	switch role {
	case RoleSelector:
		switch provider {
		case ProviderOpenRouter, ProviderOpenAI:
			return "openai/gpt-4o-mini", true
		case ProviderAnthropic:
			return "anthropic/claude-3-haiku", true
		case ProviderGoogle, ProviderGemini:
			return "google/gemini-2.0-flash-001", true
		case ProviderOllama, ProviderLocal:
			return "qwen2.5:7b-instruct", true
		}
	case RoleWriter:
		switch provider {
		case ProviderOpenRouter, ProviderOpenAI:
			return "openai/gpt-4o", true
		case ProviderAnthropic:
			return "anthropic/claude-3.5-sonnet", true
		case ProviderGoogle, ProviderGemini:
			return "google/gemini-1.5-pro", true
		case ProviderMeta, ProviderLlama:
			return "meta-llama/llama-3.1-70b-instruct", true
		case ProviderOllama, ProviderLocal:
			return "llama3.1:8b", true
		}
	}
	return "", false
}
