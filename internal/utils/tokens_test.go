package utils_test

import (
	"strings"
	"testing"

	"github.com/KaramelBytes/surveyloom/internal/utils"
	"github.com/stretchr/testify/assert"
)

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 0, utils.CountTokens(""))
	assert.Equal(t, 1, utils.CountTokens("hi"))
	assert.Equal(t, 1000, utils.CountTokens(strings.Repeat("a", 4000)))
	// Runes, not bytes.
	assert.Equal(t, 1, utils.CountTokens("éééé"))
}

func TestCountChatTokensAddsOverhead(t *testing.T) {
	assert.Equal(t, 0, utils.CountChatTokens())
	assert.Equal(t, 4+1+4+2, utils.CountChatTokens("abcd", "abcdefgh"))
}

func TestTruncateToTokenLimit(t *testing.T) {
	text := strings.Repeat("variable_name,label\n", 300)
	trunc := utils.TruncateToTokenLimit(text, 100)
	assert.LessOrEqual(t, utils.CountTokens(trunc), 100)
	assert.True(t, strings.HasSuffix(trunc, "[truncated]"))
	assert.True(t, strings.HasSuffix(strings.TrimSuffix(trunc, "\n[truncated]"), "label"))

	assert.Equal(t, "short", utils.TruncateToTokenLimit("short", 100))
	assert.Equal(t, "", utils.TruncateToTokenLimit("anything", 0))
	assert.Equal(t, "abcdefgh", utils.TruncateToTokenLimit(strings.Repeat("abcdefgh", 10), 2))
}

func TestTokenBreakdown(t *testing.T) {
	got := utils.TokenBreakdown(map[string]string{"system": strings.Repeat("x", 40), "question": ""})
	assert.Equal(t, map[string]int{"system": 10, "question": 0}, got)
}
