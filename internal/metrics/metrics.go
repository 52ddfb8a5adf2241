// Package metrics holds the Prometheus instruments shared by the chat
// pipeline and the HTTP server. Instruments auto-register via promauto on
// the default registry, which /metrics serves.
package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "surveyloom"

var (
	// LLMCallDuration labels: provider, status ("success" | error class).
	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Duration of LLM provider calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "status"},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of LLM provider calls.",
		},
		[]string{"provider", "status"},
	)

	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Tokens reported by the provider.",
		},
		[]string{"provider", "direction"},
	)

	// ToolInvocations labels: tool, outcome ("ok" | "empty" | "unknown_tool" | "bad_arguments").
	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "tool_invocations_total",
			Help:      "Tool invocations executed on behalf of the model.",
		},
		[]string{"tool", "outcome"},
	)

	ToolRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "tool_rounds",
			Help:      "Tool rounds used per completed turn.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
	)

	SelectorVariables = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "selector_variables",
			Help:      "Variables identified by the selector pass.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	// TurnsTotal labels: outcome ("completed" | "cancelled" | "failed" | "rejected").
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "turns_total",
			Help:      "User turns by outcome.",
		},
		[]string{"outcome"},
	)

	// SessionRebuilds labels: reason ("init" | "persona" | "model" | "data").
	SessionRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "rebuilds_total",
			Help:      "Chat context rebuilds by reason.",
		},
		[]string{"reason"},
	)

	ActiveTurns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active_turns",
			Help:      "Turns currently in flight.",
		},
	)
)

// ClassifyError maps an error to a low-cardinality label value.
func ClassifyError(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "cancelled"):
		return "cancelled"
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "authentication"), strings.Contains(msg, "api_key is missing"):
		return "auth"
	case strings.Contains(msg, "rate limited"):
		return "rate_limit"
	case strings.Contains(msg, "unreachable"):
		return "unreachable"
	case strings.Contains(msg, "provider error"):
		return "server"
	case strings.Contains(msg, "bad request"), strings.Contains(msg, "model not found"):
		return "request"
	default:
		return "unknown"
	}
}

// ObserveLLMCall records one completed provider call.
func ObserveLLMCall(provider string, d time.Duration, promptTokens, completionTokens int, err error) {
	status := ClassifyError(err)
	LLMCallDuration.WithLabelValues(provider, status).Observe(d.Seconds())
	LLMCallsTotal.WithLabelValues(provider, status).Inc()
	if err == nil {
		LLMTokensTotal.WithLabelValues(provider, "input").Add(float64(promptTokens))
		LLMTokensTotal.WithLabelValues(provider, "output").Add(float64(completionTokens))
	}
}
