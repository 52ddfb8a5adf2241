package agent

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/KaramelBytes/surveyloom/internal/ai"
	"github.com/KaramelBytes/surveyloom/internal/catalog"
	"github.com/KaramelBytes/surveyloom/internal/dataset"
	"github.com/KaramelBytes/surveyloom/internal/query"
)

// scriptedRuntime replays canned replies in order and records every request.
// Once the script is exhausted it keeps returning the last reply.
type scriptedRuntime struct {
	mu       sync.Mutex
	replies  []ai.Message
	errs     map[int]error
	requests []ai.GenerateRequest
}

func (r *scriptedRuntime) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.requests)
	r.requests = append(r.requests, req)
	if err := r.errs[n]; err != nil {
		return nil, err
	}
	if len(r.replies) == 0 {
		return &ai.GenerateResponse{}, nil
	}
	i := n
	if i >= len(r.replies) {
		i = len(r.replies) - 1
	}
	return &ai.GenerateResponse{
		Choices: []ai.Choice{{Message: r.replies[i]}},
		Usage:   ai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (r *scriptedRuntime) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func (r *scriptedRuntime) request(i int) ai.GenerateRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[i]
}

// blockingRuntime parks every call until its context is done or release is
// closed. started receives one value per call.
type blockingRuntime struct {
	started chan struct{}
	release chan struct{}
	reply   ai.Message
}

func newBlockingRuntime() *blockingRuntime {
	return &blockingRuntime{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (r *blockingRuntime) Generate(ctx context.Context, _ ai.GenerateRequest) (*ai.GenerateResponse, error) {
	r.started <- struct{}{}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.release:
		return &ai.GenerateResponse{Choices: []ai.Choice{{Message: r.reply}}}, nil
	}
}

func text(s string) ai.Message {
	return ai.Message{Role: ai.RoleAssistant, Content: s}
}

func toolCalls(calls ...ai.ToolCall) ai.Message {
	return ai.Message{Role: ai.RoleAssistant, ToolCalls: calls}
}

func call(id, name string, args map[string]string) ai.ToolCall {
	b, _ := json.Marshal(args)
	return ai.ToolCall{ID: id, Type: "function", Function: ai.FunctionCall{Name: name, Arguments: string(b)}}
}

func quantCall(id, question, disagg string) ai.ToolCall {
	return call(id, ToolQuantitative, map[string]string{"question_name": question, "disaggregation": disagg})
}

func qualCall(id, question string) ai.ToolCall {
	return call(id, ToolQualitative, map[string]string{"question_name": question})
}

func testStore() *dataset.Store {
	q := dataset.Questionnaire{
		Columns: []string{"name", "type", "label"},
		Rows: []dataset.QuestionnaireRow{
			{Cells: map[string]string{"name": "electricity_outages", "type": "select_one yes_no", "label": "Had power outages?"}},
			{Cells: map[string]string{"name": "trust_in_banks", "type": "text", "label": "Why do you (not) trust banks?"}},
			{Cells: map[string]string{"name": "hh_size", "type": "integer", "label": "Household size"}},
		},
	}
	results := []dataset.ResultRow{
		{Question: "electricity_outages", Disaggregation: "all", AnswerOption: "yes", Value: "63", SampleSize: "450", Indicator: "percent"},
		{Question: "electricity_outages", Disaggregation: "gender", AnswerOption: "yes", Value: "19", SampleSize: "120"},
	}
	qual := []dataset.QualitativeRow{
		{Question: "trust_in_banks", Theme: dataset.ExecutiveSummaryTheme, Summary: "Low trust overall"},
		{Question: "trust_in_banks", Theme: "Collateral", Frequency: "9", ProportionPercent: "0.45", Summary: "Banks demand collateral", Quotes: "q1\n---\nq2"},
	}
	return dataset.NewStore(q, results, qual)
}

type fixture struct {
	store   *dataset.Store
	catalog *catalog.Catalog
	index   *catalog.DisaggregationIndex
	engine  *query.Engine
}

func newFixture() fixture {
	st := testStore()
	return fixture{
		store:   st,
		catalog: catalog.Build(st.Questionnaire(), st.Results()),
		index:   catalog.BuildDisaggregations(st.Results()),
		engine:  query.NewEngine(st),
	}
}

func (f fixture) chat(rt ai.Runtime) *ChatSession {
	return NewChatSession(rt, ChatOptions{
		Model:        "test/model",
		SystemPrompt: "you are a test analyst",
		Tools:        BuildTools(f.index),
	})
}

func decodeRows(t interface{ Fatalf(string, ...any) }, content string) []query.QuantRow {
	var rows []query.QuantRow
	if err := json.Unmarshal([]byte(content), &rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	return rows
}
