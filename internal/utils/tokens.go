package utils

import "strings"

// Token counts here are estimates for budgeting a prompt before a call. The
// provider's usage figures are authoritative afterwards.

const charsPerToken = 4

// perMessageOverhead approximates the role and framing tokens chat APIs add
// around every message.
const perMessageOverhead = 4

const truncatedMarker = "\n[truncated]"

// CountTokens estimates tokens in text at roughly four characters per token.
// Non-empty text always counts as at least one token.
func CountTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	if t := n / charsPerToken; t > 0 {
		return t
	}
	return 1
}

// CountChatTokens estimates a chat request made of the given message bodies.
func CountChatTokens(messages ...string) int {
	total := 0
	for _, m := range messages {
		total += CountTokens(m) + perMessageOverhead
	}
	return total
}

// TruncateToTokenLimit cuts text to about limit tokens, marker included. The
// cut backs up to a line break when one falls in the second half.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	max := limit * charsPerToken
	if max >= len(runes) {
		return text
	}
	room := max - len([]rune(truncatedMarker))
	if room <= 0 {
		return string(runes[:max])
	}
	cut := string(runes[:room])
	if i := strings.LastIndexByte(cut, '\n'); i > len(cut)/2 {
		cut = cut[:i]
	}
	return cut + truncatedMarker
}

// TokenBreakdown estimates each labelled prompt section.
func TokenBreakdown(sections map[string]string) map[string]int {
	out := make(map[string]int, len(sections))
	for k, v := range sections {
		out[k] = CountTokens(v)
	}
	return out
}
