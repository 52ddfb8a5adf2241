package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KaramelBytes/surveyloom/internal/ai"
	"github.com/KaramelBytes/surveyloom/internal/catalog"
	"github.com/KaramelBytes/surveyloom/internal/logging"
	"github.com/KaramelBytes/surveyloom/internal/metrics"
)

const selectorInstructions = `You map a user's question about a survey to the variables that can answer it.

Rules:
- Only return names that appear in the variable list below, spelled exactly.
- When a topic has both a [QUANTITATIVE] and a [QUALITATIVE] variable, return both.
- Return an empty list when nothing is relevant.
- Respond with JSON only: {"variables": ["name", ...]}.`

var selectorSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "variables": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["variables"],
  "additionalProperties": false
}`)

// Selector is the first LLM pass: a single structured-output call that
// returns candidate variable names. It never fails a turn; any error yields
// an empty selection.
type Selector struct {
	runtime   ai.Runtime
	model     string
	catalog   *catalog.Catalog
	logger    *slog.Logger
	maxTokens int
}

func NewSelector(rt ai.Runtime, model string, cat *catalog.Catalog, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Selector{runtime: rt, model: model, catalog: cat, logger: logger, maxTokens: 512}
}

// Model returns the selector model id.
func (s *Selector) Model() string { return s.model }

// Select returns the catalog variables relevant to utterance, filtered to
// valid names with duplicates removed and model order kept.
func (s *Selector) Select(ctx context.Context, utterance string) []string {
	if s.catalog == nil || s.catalog.Len() == 0 {
		metrics.SelectorVariables.Observe(0)
		return []string{}
	}
	req := ai.GenerateRequest{
		Model: s.model,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: selectorInstructions},
			{Role: ai.RoleUser, Content: fmt.Sprintf("Variables:\n%s\n\nQuestion: %s", s.catalog.ContextBlock(), utterance)},
		},
		MaxTokens:      s.maxTokens,
		ResponseFormat: ai.SchemaFormat("variable_selection", selectorSchema),
	}
	resp, err := raceGenerate(ctx, s.runtime, req)
	if err != nil {
		s.logger.Warn("variable selection failed", "model", s.model, "error", err)
		metrics.SelectorVariables.Observe(0)
		return []string{}
	}
	msg, ok := resp.FirstMessage()
	if !ok {
		s.logger.Warn("variable selection returned no choices", "model", s.model)
		metrics.SelectorVariables.Observe(0)
		return []string{}
	}
	names, err := parseSelection(msg.Content)
	if err != nil {
		s.logger.Warn("variable selection unparseable", "model", s.model, "error", err)
		metrics.SelectorVariables.Observe(0)
		return []string{}
	}
	valid := s.catalog.Filter(names)
	if dropped := len(names) - len(valid); dropped > 0 {
		s.logger.Debug("selector returned unknown or duplicate names", "dropped", dropped)
	}
	metrics.SelectorVariables.Observe(float64(len(valid)))
	return valid
}

// parseSelection accepts {"variables": [...]} or a bare array, optionally
// wrapped in a markdown code fence.
func parseSelection(content string) ([]string, error) {
	body := stripFence(strings.TrimSpace(content))
	if body == "" {
		return nil, fmt.Errorf("empty selection")
	}
	var obj struct {
		Variables []string `json:"variables"`
	}
	if strings.HasPrefix(body, "{") {
		if err := json.Unmarshal([]byte(body), &obj); err != nil {
			return nil, fmt.Errorf("decode selection: %w", err)
		}
		return obj.Variables, nil
	}
	var arr []string
	if err := json.Unmarshal([]byte(body), &arr); err != nil {
		return nil, fmt.Errorf("decode selection: %w", err)
	}
	return arr, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
