package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/KaramelBytes/surveyloom/internal/ai"
	"github.com/KaramelBytes/surveyloom/internal/catalog"
	"github.com/KaramelBytes/surveyloom/internal/logging"
	"github.com/KaramelBytes/surveyloom/internal/metrics"
	"github.com/KaramelBytes/surveyloom/internal/progress"
	"github.com/KaramelBytes/surveyloom/internal/query"
)

// TracerName is the OTel tracer used for turn and tool spans.
const TracerName = "surveyloom/agent"

// DefaultMaxRounds bounds tool rounds per turn.
const DefaultMaxRounds = 5

// ExecutedQuery records one tool invocation for display.
type ExecutedQuery struct {
	Kind           QueryKind `json:"type"`
	Tool           string    `json:"tool"`
	Variable       string    `json:"variable"`
	Disaggregation string    `json:"disaggregation,omitempty"`
	Rows           int       `json:"rows"`
	SampleSize     int       `json:"sample_size,omitempty"`
	Found          bool      `json:"found"`
	Error          string    `json:"error,omitempty"`
}

// Trace summarizes a completed turn.
type Trace struct {
	Variables  []string        `json:"variables_identified"`
	Queries    []ExecutedQuery `json:"queries"`
	QuantCount int             `json:"quantitative_queries"`
	QualCount  int             `json:"qualitative_queries"`
	Rounds     int             `json:"tool_rounds"`
	Timestamp  string          `json:"timestamp"`
}

// TurnResult is the outcome of a completed turn.
type TurnResult struct {
	Text    string
	Queries []ExecutedQuery
	Trace   Trace
	Rounds  int
	// Exhausted is set when the round bound stopped the loop while the
	// model was still requesting tools.
	Exhausted bool
	Usage     ai.Usage
}

// Orchestrator runs the writer side of a turn: it sends the augmented user
// message, executes requested tools, feeds results back and repeats until the
// model answers in text or the round bound is reached.
type Orchestrator struct {
	engine    *query.Engine
	catalog   *catalog.Catalog
	tracker   *progress.Tracker
	logger    *slog.Logger
	maxRounds int
	validate  *validator.Validate
	now       func() time.Time
}

type OrchestratorOptions struct {
	Engine    *query.Engine
	Catalog   *catalog.Catalog
	Tracker   *progress.Tracker
	Logger    *slog.Logger
	MaxRounds int
}

func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	o := &Orchestrator{
		engine:    opts.Engine,
		catalog:   opts.Catalog,
		tracker:   opts.Tracker,
		logger:    opts.Logger,
		maxRounds: opts.MaxRounds,
		validate:  validator.New(),
		now:       time.Now,
	}
	if o.logger == nil {
		o.logger = logging.Nop()
	}
	if o.tracker == nil {
		o.tracker = progress.NewTracker()
	}
	if o.maxRounds <= 0 {
		o.maxRounds = DefaultMaxRounds
	}
	return o
}

// MaxRounds returns the configured round bound.
func (o *Orchestrator) MaxRounds() int { return o.maxRounds }

// AugmentMessage prefixes the user's text with the selected variables so the
// writer model knows where to look first.
func (o *Orchestrator) AugmentMessage(input string, variables []string) string {
	if len(variables) == 0 {
		return input + "\n\n[No specific survey variables were identified for this question. If the topic is unclear, ask the user to clarify which survey topic or question they mean before answering; otherwise use the variable list in your instructions and query before answering.]"
	}
	var b strings.Builder
	b.WriteString(input)
	b.WriteString("\n\n[Relevant survey variables identified for this question:\n")
	for _, name := range variables {
		tag := ""
		if o.catalog != nil {
			if v, ok := o.catalog.Lookup(name); ok {
				tag = " " + v.Kind.Tag()
			}
		}
		fmt.Fprintf(&b, "- %s%s\n", name, tag)
	}
	b.WriteString("Query these before answering.]")
	return b.String()
}

// Run executes one turn on chat. The exchange is committed to the chat
// history only when the turn completes; cancellation or a provider error
// leaves the history untouched.
func (o *Orchestrator) Run(ctx context.Context, chat *ChatSession, input string, variables []string) (*TurnResult, error) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "agent.Turn",
		trace.WithAttributes(
			attribute.String("model", chat.Model()),
			attribute.Int("selected_variables", len(variables)),
			attribute.Int("max_rounds", o.maxRounds),
		),
	)
	defer span.End()

	res, err := o.run(ctx, chat, input, variables)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			span.SetAttributes(attribute.Bool("cancelled", true))
			span.SetStatus(codes.Unset, "cancelled")
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("tool_rounds", res.Rounds),
		attribute.Int("queries", len(res.Queries)),
		attribute.Bool("rounds_exhausted", res.Exhausted),
	)
	metrics.ToolRounds.Observe(float64(res.Rounds))
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, chat *ChatSession, input string, variables []string) (*TurnResult, error) {
	x := chat.Begin()
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	reply, err := x.Send(ctx, ai.Message{Role: ai.RoleUser, Content: o.AugmentMessage(input, variables)})
	if err != nil {
		return nil, err
	}

	res := &TurnResult{}
	for len(reply.ToolCalls) > 0 {
		if res.Rounds >= o.maxRounds {
			res.Exhausted = true
			o.logger.Warn("tool round limit reached", "rounds", res.Rounds, "pending_calls", len(reply.ToolCalls))
			// Answer the dangling calls so the committed history stays a
			// valid tool-call transcript for the next turn.
			for _, call := range reply.ToolCalls {
				x.Stage(toolMessage(call, map[string]string{"error": "tool round limit reached; answer with the data already retrieved"}))
			}
			break
		}
		res.Rounds++
		roundID := o.tracker.Start(fmt.Sprintf("Tool round %d", res.Rounds), map[string]any{
			"round": res.Rounds,
			"calls": len(reply.ToolCalls),
		})
		results := make([]ai.Message, 0, len(reply.ToolCalls))
		for _, call := range reply.ToolCalls {
			if ctx.Err() != nil {
				return nil, ErrCancelled
			}
			msg, executed := o.execute(ctx, call)
			results = append(results, msg)
			res.Queries = append(res.Queries, executed)
		}
		o.tracker.Complete(roundID, nil)
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		reply, err = x.Send(ctx, results...)
		if err != nil {
			return nil, err
		}
	}

	x.Commit()
	res.Text = reply.Content
	res.Usage = x.Usage()
	res.Trace = o.summarize(variables, res)
	return res, nil
}

// execute runs a single tool call. Failures are reported to the model in
// the tool result payload rather than aborting the turn.
func (o *Orchestrator) execute(ctx context.Context, call ai.ToolCall) (ai.Message, ExecutedQuery) {
	_, span := otel.Tracer(TracerName).Start(ctx, "agent.Tool",
		trace.WithAttributes(
			attribute.String("tool", call.Function.Name),
			attribute.String("call_id", call.ID),
		),
	)
	defer span.End()

	switch call.Function.Name {
	case ToolQuantitative:
		var args quantitativeArgs
		if err := o.decodeArgs(call.Function.Arguments, &args); err != nil {
			return o.badArguments(span, call, KindQuantitative, err)
		}
		stepID := o.tracker.Start("Querying "+args.QuestionName, map[string]any{
			"type":           string(KindQuantitative),
			"variable":       args.QuestionName,
			"disaggregation": args.Disaggregation,
		})
		rows := o.engine.Quantitative(args.QuestionName, args.Disaggregation)
		n := query.SampleSizes(rows)
		o.tracker.Complete(stepID, map[string]any{"rows": len(rows), "sample_size": n})
		outcome := "ok"
		if len(rows) == 0 {
			outcome = "empty"
		}
		metrics.ToolInvocations.WithLabelValues(call.Function.Name, outcome).Inc()
		span.SetAttributes(attribute.String("variable", args.QuestionName), attribute.Int("rows", len(rows)))
		o.logger.Debug("quantitative query", "variable", args.QuestionName, "disaggregation", args.Disaggregation, "rows", len(rows))
		return toolMessage(call, rows), ExecutedQuery{
			Kind:           KindQuantitative,
			Tool:           call.Function.Name,
			Variable:       args.QuestionName,
			Disaggregation: args.Disaggregation,
			Rows:           len(rows),
			SampleSize:     n,
			Found:          len(rows) > 0,
		}

	case ToolQualitative:
		var args qualitativeArgs
		if err := o.decodeArgs(call.Function.Arguments, &args); err != nil {
			return o.badArguments(span, call, KindQualitative, err)
		}
		stepID := o.tracker.Start("Querying "+args.QuestionName, map[string]any{
			"type":     string(KindQualitative),
			"variable": args.QuestionName,
		})
		result := o.engine.Qualitative(args.QuestionName)
		o.tracker.Complete(stepID, map[string]any{"themes": len(result.Themes), "found": result.Found})
		outcome := "ok"
		if !result.Found {
			outcome = "empty"
		}
		metrics.ToolInvocations.WithLabelValues(call.Function.Name, outcome).Inc()
		span.SetAttributes(attribute.String("variable", args.QuestionName), attribute.Int("themes", len(result.Themes)))
		o.logger.Debug("qualitative query", "variable", args.QuestionName, "themes", len(result.Themes))
		return toolMessage(call, result), ExecutedQuery{
			Kind:     KindQualitative,
			Tool:     call.Function.Name,
			Variable: args.QuestionName,
			Rows:     len(result.Themes),
			Found:    result.Found,
		}

	default:
		metrics.ToolInvocations.WithLabelValues("unknown", "unknown_tool").Inc()
		span.SetStatus(codes.Error, "unknown tool")
		o.logger.Warn("model requested unknown tool", "tool", call.Function.Name)
		msg := "unknown tool: " + call.Function.Name
		o.failedStep(call, "", msg)
		return toolMessage(call, map[string]string{"error": msg}), ExecutedQuery{
			Tool:  call.Function.Name,
			Error: msg,
		}
	}
}

func (o *Orchestrator) decodeArgs(raw string, dst any) error {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("invalid JSON arguments: %w", err)
	}
	if err := o.validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (o *Orchestrator) badArguments(span trace.Span, call ai.ToolCall, kind QueryKind, err error) (ai.Message, ExecutedQuery) {
	metrics.ToolInvocations.WithLabelValues(call.Function.Name, "bad_arguments").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "bad arguments")
	o.logger.Warn("tool call with bad arguments", "tool", call.Function.Name, "error", err)
	o.failedStep(call, kind, err.Error())
	return toolMessage(call, map[string]string{"error": err.Error()}), ExecutedQuery{
		Kind:  kind,
		Tool:  call.Function.Name,
		Error: err.Error(),
	}
}

// failedStep records a start/complete pair for a call that could not run.
func (o *Orchestrator) failedStep(call ai.ToolCall, kind QueryKind, msg string) {
	details := map[string]any{"tool": call.Function.Name}
	if kind != "" {
		details["type"] = string(kind)
	}
	stepID := o.tracker.Start("Calling "+call.Function.Name, details)
	o.tracker.Complete(stepID, map[string]any{"error": msg})
}

func toolMessage(call ai.ToolCall, payload any) ai.Message {
	body, err := json.Marshal(payload)
	if err != nil {
		body = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	return ai.Message{
		Role:       ai.RoleTool,
		Content:    string(body),
		ToolCallID: call.ID,
		Name:       call.Function.Name,
	}
}

func (o *Orchestrator) summarize(variables []string, res *TurnResult) Trace {
	tr := Trace{
		Variables: append([]string{}, variables...),
		Queries:   append([]ExecutedQuery{}, res.Queries...),
		Rounds:    res.Rounds,
		Timestamp: o.now().UTC().Format(time.RFC3339),
	}
	for _, q := range res.Queries {
		switch q.Kind {
		case KindQuantitative:
			tr.QuantCount++
		case KindQualitative:
			tr.QualCount++
		}
	}
	return tr
}
