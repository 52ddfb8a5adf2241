package ai

import (
	"encoding/json"
	"os"
	"sort"
)

// Model metadata used for defaults, pricing hints and capability warnings.
// Prices are illustrative and should be verified against provider docs.

type ModelInfo struct {
	Name          string
	ContextTokens int     // approximate context window
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
	// ToolCalling marks models known to honour tool declarations. The chat
	// pipeline needs it for the writer model; the selector only needs
	// structured output.
	ToolCalling bool
}

func m(name string, ctx int, in, out float64, tools bool) ModelInfo {
	return ModelInfo{Name: name, ContextTokens: ctx, InputPerK: in, OutputPerK: out, ToolCalling: tools}
}

var models = map[string]ModelInfo{
	"openai/gpt-4o-mini":                m("openai/gpt-4o-mini", 128000, 0.00015, 0.0006, true),
	"openai/gpt-4o":                     m("openai/gpt-4o", 128000, 0.0025, 0.01, true),
	"openai/gpt-4.1-mini":               m("openai/gpt-4.1-mini", 1047576, 0.0004, 0.0016, true),
	"anthropic/claude-3.5-sonnet":       m("anthropic/claude-3.5-sonnet", 200000, 0.003, 0.015, true),
	"anthropic/claude-3-haiku":          m("anthropic/claude-3-haiku", 200000, 0.00025, 0.00125, true),
	"google/gemini-2.0-flash-001":       m("google/gemini-2.0-flash-001", 1000000, 0.0001, 0.0004, true),
	"google/gemini-1.5-pro":             m("google/gemini-1.5-pro", 1000000, 0.00125, 0.005, true),
	"meta-llama/llama-3.1-70b-instruct": m("meta-llama/llama-3.1-70b-instruct", 131072, 0.0001, 0.00028, true),
	"deepseek/deepseek-r1:free":         m("deepseek/deepseek-r1:free", 128000, 0, 0, false),
	// Common local (Ollama) tags
	"llama3.1:8b":         m("llama3.1:8b", 131072, 0, 0, true),
	"qwen2.5:7b-instruct": m("qwen2.5:7b-instruct", 32768, 0, 0, true),
	"mistral-nemo:latest": m("mistral-nemo:latest", 131072, 0, 0, true),
	"llama3:latest":       m("llama3:latest", 8192, 0, 0, false),
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	mi, ok := models[name]
	return mi, ok
}

// SupportsTools reports whether a model is known to handle tool calls.
// Unknown models are assumed capable.
func SupportsTools(name string) bool {
	mi, ok := LookupModel(name)
	return !ok || mi.ToolCalling
}

// EstimateCostUSD estimates total cost in USD for given tokens using model pricing.
// If the model is unknown, returns 0 and ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	inCost := (float64(promptTokens) / 1000.0) * mi.InputPerK
	outCost := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return inCost + outCost, true
}

// ---- Sync/override helpers ----

// LoadCatalogFromJSON loads a JSON object map[string]ModelInfo from a file path.
// Example JSON entry:
// { "openai/gpt-4o-mini": {"Name":"openai/gpt-4o-mini","ContextTokens":128000,"InputPerK":0.00015,"OutputPerK":0.0006,"ToolCalling":true} }
func LoadCatalogFromJSON(path string) (map[string]ModelInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out map[string]ModelInfo
	if err := json.NewDecoder(f).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// OverrideCatalog replaces the in-memory catalog entirely.
func OverrideCatalog(c map[string]ModelInfo) {
	if c == nil {
		return
	}
	models = c
}

// MergeCatalog merges/overrides entries in the in-memory catalog.
func MergeCatalog(c map[string]ModelInfo) {
	for k, v := range c {
		models[k] = v
	}
}

// Catalog returns a shallow copy of the current model catalog.
func Catalog() map[string]ModelInfo {
	out := make(map[string]ModelInfo, len(models))
	for k, v := range models {
		out[k] = v
	}
	return out
}

// CatalogNames returns catalog keys in sorted order.
func CatalogNames() []string {
	names := make([]string, 0, len(models))
	for k := range models {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
