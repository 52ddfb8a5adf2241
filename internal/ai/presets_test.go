package ai

import "testing"

func TestPresetCatalogOpenRouter(t *testing.T) {
	m, ok := PresetCatalog("openrouter")
	if !ok || len(m) == 0 {
		t.Fatalf("expected openrouter preset to be available")
	}
	if _, exists := m["openai/gpt-4o-mini"]; !exists {
		t.Fatalf("expected gpt-4o-mini in openrouter preset")
	}
	for name, mi := range m {
		if !mi.ToolCalling {
			t.Fatalf("preset %s should be tool-capable", name)
		}
	}
}

func TestRecommendModel(t *testing.T) {
	if name, ok := RecommendModel("", RoleSelector); !ok || name != "openai/gpt-4o-mini" {
		t.Fatalf("unexpected selector recommendation: %s", name)
	}
	if name, ok := RecommendModel("anthropic", RoleWriter); !ok || name != "anthropic/claude-3.5-sonnet" {
		t.Fatalf("unexpected recommendation for anthropic/writer: %s", name)
	}
	if name, ok := RecommendModel("ollama", RoleWriter); !ok || name != "llama3.1:8b" {
		t.Fatalf("unexpected recommendation for ollama/writer: %s", name)
	}
	if _, ok := RecommendModel("", "unknown"); ok {
		t.Fatalf("expected unknown role to be false")
	}
}

func TestSupportsTools(t *testing.T) {
	if SupportsTools("deepseek/deepseek-r1:free") {
		t.Fatalf("deepseek r1 free should not be marked tool-capable")
	}
	if !SupportsTools("openai/gpt-4o") {
		t.Fatalf("gpt-4o should be tool-capable")
	}
	if !SupportsTools("some/unknown-model") {
		t.Fatalf("unknown models are assumed capable")
	}
}
