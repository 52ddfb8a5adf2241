package ai

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDescribeAddsHints(t *testing.T) {
	base := &APIError{StatusCode: 401, Message: "bad key"}
	cases := []struct {
		provider string
		model    string
		err      error
		want     string
	}{
		{ProviderOpenRouter, "openai/gpt-4o-mini", &AuthError{APIError: base}, "OPENROUTER_API_KEY"},
		{ProviderOpenRouter, "openai/gpt-4o-mini", &RateLimitError{APIError: base, RetryAfter: 3 * time.Second}, "~3s"},
		{ProviderOllama, "llama3.1:8b", &ModelNotFoundError{APIError: base}, "ollama pull llama3.1:8b"},
		{ProviderOllama, "llama3.1:8b", &UnreachableError{Host: "http://127.0.0.1:11434", Err: errors.New("refused")}, "Ollama not reachable"},
		{ProviderOpenRouter, "deepseek/deepseek-r1:free", &BadRequestError{APIError: base}, "tool calling"},
		{ProviderOpenRouter, "x", &ServerError{APIError: base}, "server error"},
		{ProviderOpenRouter, "x", errors.New("weird"), "generation failed"},
	}
	for _, c := range cases {
		got := Describe(c.provider, c.model, c.err)
		assert.Contains(t, got.Error(), c.want)
		assert.ErrorIs(t, got, c.err)
	}
	assert.NoError(t, Describe(ProviderOllama, "m", nil))
}
