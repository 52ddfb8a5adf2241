package ai

import (
	"context"
	"time"

	"github.com/KaramelBytes/surveyloom/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the OTel tracer name used for provider calls.
const TracerName = "surveyloom/ai"

type instrumented struct {
	next     Runtime
	provider string
}

// Instrument wraps a runtime so every call records Prometheus metrics and an
// OTel span. Wrapping nil returns nil.
func Instrument(provider string, rt Runtime) Runtime {
	if rt == nil {
		return nil
	}
	if _, ok := rt.(*instrumented); ok {
		return rt
	}
	return &instrumented{next: rt, provider: provider}
}

func (r *instrumented) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "ai.Generate",
		trace.WithAttributes(
			attribute.String("provider", r.provider),
			attribute.String("model", req.Model),
			attribute.Int("message_count", len(req.Messages)),
			attribute.Int("tool_count", len(req.Tools)),
			attribute.Bool("structured_output", req.ResponseFormat != nil),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := r.next.Generate(ctx, req)
	d := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.ObserveLLMCall(r.provider, d, 0, 0, err)
		return nil, err
	}
	toolCalls := 0
	if msg, ok := resp.FirstMessage(); ok {
		toolCalls = len(msg.ToolCalls)
	}
	span.AddEvent("response_received", trace.WithAttributes(
		attribute.Int("prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("completion_tokens", resp.Usage.CompletionTokens),
		attribute.Int("tool_calls", toolCalls),
	))
	metrics.ObserveLLMCall(r.provider, d, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil)
	return resp, nil
}
