package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// OllamaClient is a minimal HTTP client for a local Ollama runtime.
// It implements Runtime on top of /api/chat, including tool calling and
// schema-constrained output.
type OllamaClient struct {
	httpClient       *http.Client
	host             string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

// NewOllamaClient creates a new client targeting the given host (e.g., http://127.0.0.1:11434).
func NewOllamaClient(host string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *OllamaClient {
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 2
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 1 * time.Second
	}
	return &OllamaClient{
		httpClient:       &http.Client{Timeout: httpTimeout},
		host:             host,
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

// Structures aligned with Ollama /api/chat (non-streaming)
type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Tools    []Tool              `json:"tools,omitempty"`
	Format   json.RawMessage     `json:"format,omitempty"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message    ollamaChatMessage `json:"message"`
	Done       bool              `json:"done"`
	DoneReason string            `json:"done_reason"`
	PromptEval int               `json:"prompt_eval_count"`
	EvalCount  int               `json:"eval_count"`
}

// toOllamaMessages converts the shared message shape. Ollama expects tool
// arguments as JSON objects rather than encoded strings, and identifies tool
// results by tool name instead of call id.
func toOllamaMessages(in []Message) []ollamaChatMessage {
	out := make([]ollamaChatMessage, len(in))
	for i, msg := range in {
		om := ollamaChatMessage{Role: msg.Role, Content: msg.Content}
		if msg.Role == RoleTool {
			om.ToolName = msg.Name
		}
		for _, tc := range msg.ToolCalls {
			var call ollamaToolCall
			call.Function.Name = tc.Function.Name
			args := json.RawMessage(tc.Function.Arguments)
			if !json.Valid(args) {
				args = json.RawMessage("{}")
			}
			call.Function.Arguments = args
			om.ToolCalls = append(om.ToolCalls, call)
		}
		out[i] = om
	}
	return out
}

// fromOllamaMessage maps a reply back, assigning synthetic call ids since
// Ollama does not issue any.
func fromOllamaMessage(m ollamaChatMessage) Message {
	msg := Message{Role: RoleAssistant, Content: m.Content}
	for i, tc := range m.ToolCalls {
		args := string(tc.Function.Arguments)
		if args == "" || args == "null" {
			args = "{}"
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:       fmt.Sprintf("call_%d", i),
			Type:     "function",
			Function: FunctionCall{Name: tc.Function.Name, Arguments: args},
		})
	}
	return msg
}

// Generate sends a chat request to Ollama and maps the response to GenerateResponse.
func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}

	oreq := ollamaChatRequest{
		Model:    req.Model,
		Messages: toOllamaMessages(req.Messages),
		Stream:   false,
		Tools:    req.Tools,
		Options:  map[string]any{},
	}
	if rf := req.ResponseFormat; rf != nil {
		switch {
		case rf.JSONSchema != nil && len(rf.JSONSchema.Schema) > 0:
			oreq.Format = rf.JSONSchema.Schema
		case rf.Type == "json_object":
			oreq.Format = json.RawMessage(`"json"`)
		}
	}
	if req.Temperature > 0 {
		oreq.Options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		oreq.Options["num_predict"] = req.MaxTokens
	}

	payload, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.host + "/api/chat"
	maxAttempts := c.retryMaxAttempts
	backoff := c.retryBaseDelay
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if isRetryableNetErr(err) && attempt < maxAttempts {
				if err := sleepCtx(ctx, withJitter(backoff)); err != nil {
					return nil, err
				}
				backoff *= 2
				continue
			}
			return nil, &UnreachableError{Host: c.host, Err: err}
		}
		out, err := c.readResponse(resp)
		if err == nil {
			return out, nil
		}
		lastErr = err
		var brErr *BadRequestError
		var nfErr *ModelNotFoundError
		if errors.As(err, &brErr) || errors.As(err, &nfErr) {
			break
		}
		if attempt < maxAttempts {
			wait := withJitter(backoff)
			if c.retryMaxDelay > 0 && wait > c.retryMaxDelay {
				wait = c.retryMaxDelay
			}
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			backoff *= 2
		}
	}
	return nil, lastErr
}

func (c *OllamaClient) readResponse(resp *http.Response) (*GenerateResponse, error) {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := readAPIError(resp)
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, &ModelNotFoundError{APIError: apiErr}
		case resp.StatusCode >= 500:
			return nil, &ServerError{APIError: apiErr}
		case resp.StatusCode == http.StatusBadRequest:
			return nil, &BadRequestError{APIError: apiErr}
		}
		return nil, apiErr
	}
	var oresp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oresp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	msg := fromOllamaMessage(oresp.Message)
	finish := oresp.DoneReason
	if len(msg.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	return &GenerateResponse{
		Choices: []Choice{{Message: msg, FinishReason: finish}},
		Usage: Usage{
			PromptTokens:     oresp.PromptEval,
			CompletionTokens: oresp.EvalCount,
			TotalTokens:      oresp.PromptEval + oresp.EvalCount,
		},
		// Simulated correlation id
		RequestID: fmt.Sprintf("ollama_%d", time.Now().UnixNano()),
	}, nil
}
