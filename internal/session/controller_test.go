package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/surveyloom/internal/agent"
	"github.com/KaramelBytes/surveyloom/internal/ai"
	"github.com/KaramelBytes/surveyloom/internal/dataset"
	"github.com/KaramelBytes/surveyloom/internal/logging"
	"github.com/KaramelBytes/surveyloom/internal/persona"
	"github.com/KaramelBytes/surveyloom/internal/progress"
)

// routedRuntime answers selector calls (structured output) with selection
// and writer calls from writer in order, repeating the last entry. When
// block is set, writer calls park until their context is cancelled.
type routedRuntime struct {
	mu        sync.Mutex
	selection string
	writer    []ai.Message
	writerErr error
	block     bool
	started   chan struct{}
	writerReq []ai.GenerateRequest
	selectReq []ai.GenerateRequest
}

func (r *routedRuntime) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	r.mu.Lock()
	if req.ResponseFormat != nil {
		r.selectReq = append(r.selectReq, req)
		sel := r.selection
		r.mu.Unlock()
		return reply(ai.Message{Role: ai.RoleAssistant, Content: sel}), nil
	}
	n := len(r.writerReq)
	r.writerReq = append(r.writerReq, req)
	block, started, werr := r.block, r.started, r.writerErr
	var msg ai.Message
	if len(r.writer) > 0 {
		i := n
		if i >= len(r.writer) {
			i = len(r.writer) - 1
		}
		msg = r.writer[i]
	}
	r.mu.Unlock()

	if block {
		if started != nil {
			started <- struct{}{}
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if werr != nil {
		return nil, werr
	}
	return reply(msg), nil
}

func (r *routedRuntime) writerRequests() []ai.GenerateRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ai.GenerateRequest(nil), r.writerReq...)
}

func reply(m ai.Message) *ai.GenerateResponse {
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: m}}}
}

func say(s string) ai.Message { return ai.Message{Role: ai.RoleAssistant, Content: s} }

func askTool(id, question, disagg string) ai.Message {
	args, _ := json.Marshal(map[string]string{"question_name": question, "disaggregation": disagg})
	return ai.Message{Role: ai.RoleAssistant, ToolCalls: []ai.ToolCall{{
		ID: id, Type: "function",
		Function: ai.FunctionCall{Name: agent.ToolQuantitative, Arguments: string(args)},
	}}}
}

func surveyStore() *dataset.Store {
	q := dataset.Questionnaire{
		Columns: []string{"name", "type", "label"},
		Rows: []dataset.QuestionnaireRow{
			{Cells: map[string]string{"name": "electricity_outages", "type": "select_one", "label": "Had power outages?"}},
			{Cells: map[string]string{"name": "trust_in_banks", "type": "text", "label": "Trust in banks"}},
		},
	}
	results := []dataset.ResultRow{
		{Question: "electricity_outages", Disaggregation: "all", AnswerOption: "yes", Value: "63", SampleSize: "450"},
		{Question: "electricity_outages", Disaggregation: "gender", AnswerOption: "yes", Value: "19", SampleSize: "120"},
	}
	qual := []dataset.QualitativeRow{
		{Question: "trust_in_banks", Theme: dataset.ExecutiveSummaryTheme, Summary: "Low trust overall"},
	}
	return dataset.NewStore(q, results, qual)
}

func newController(t *testing.T, rt ai.Runtime) *Controller {
	t.Helper()
	c, err := New(Options{
		Runtime:  rt,
		Provider: ai.ProviderOpenRouter,
		Store:    surveyStore(),
		Config:   Config{Model: "openai/gpt-4o-mini", SelectorModel: "openai/gpt-4o-mini", Persona: persona.Economist},
		Logger:   logging.NewTestLogger(t),
	})
	require.NoError(t, err)
	return c
}

func TestSendCompletesTurn(t *testing.T) {
	rt := &routedRuntime{
		selection: `{"variables":["electricity_outages","bogus"]}`,
		writer:    []ai.Message{askTool("c1", "electricity_outages", "all"), say("63% reported outages (n=450).")},
	}
	c := newController(t, rt)

	msg, err := c.Send(context.Background(), "How common are outages?")
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, "63% reported outages (n=450).", msg.Content)
	assert.Equal(t, []string{"electricity_outages"}, msg.Variables)
	require.Len(t, msg.Queries, 1)
	assert.Equal(t, agent.KindQuantitative, msg.Queries[0].Kind)
	require.NotNil(t, msg.Trace)
	assert.Equal(t, 1, msg.Trace.QuantCount)
	assert.NotEmpty(t, msg.Steps)
	assert.Equal(t, "Identifying relevant variables", msg.Steps[0].Name)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "How common are outages?", msgs[0].Content)
	assert.False(t, c.Busy())
	assert.Equal(t, 4, c.ChatLen(), "user, tool-call reply, tool result, final reply")
}

func TestCancelAfterSelectorRestoresInput(t *testing.T) {
	rt := &routedRuntime{
		selection: `{"variables":["electricity_outages"]}`,
		writer:    []ai.Message{say("first answer")},
	}
	c := newController(t, rt)
	_, err := c.Send(context.Background(), "warm up")
	require.NoError(t, err)
	before := c.Messages()
	chatBefore := c.ChatLen()

	rt.mu.Lock()
	rt.block = true
	rt.started = make(chan struct{}, 1)
	started := rt.started
	rt.mu.Unlock()

	type result struct {
		msg Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := c.Send(context.Background(), "  What about gender?  ")
		done <- result{m, err}
	}()

	<-started
	assert.True(t, c.Busy())
	assert.True(t, c.Cancel())

	var res result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not end the turn")
	}
	var cancelled *CancelledError
	require.ErrorAs(t, res.err, &cancelled)
	assert.Equal(t, "  What about gender?  ", cancelled.Input)
	assert.ErrorIs(t, res.err, agent.ErrCancelled)

	assert.Equal(t, before, c.Messages())
	assert.Equal(t, chatBefore, c.ChatLen())
	assert.Empty(t, c.Progress().Steps())
	assert.False(t, c.Busy())
	assert.False(t, c.Cancel())
}

func TestSendRejectedWhileBusy(t *testing.T) {
	rt := &routedRuntime{selection: `[]`, block: true, started: make(chan struct{}, 1)}
	c := newController(t, rt)

	errc := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "slow")
		errc <- err
	}()
	<-rt.started

	_, err := c.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrTurnInProgress)
	assert.ErrorIs(t, c.UpdatePersona(persona.PolicyBrief, ""), ErrTurnInProgress)
	assert.ErrorIs(t, c.UpdateModel("openai/gpt-4o"), ErrTurnInProgress)

	c.Cancel()
	assert.ErrorIs(t, <-errc, agent.ErrCancelled)
}

func TestProviderErrorBecomesAssistantMessage(t *testing.T) {
	apiErr := &ai.ServerError{APIError: &ai.APIError{StatusCode: 502, Message: "upstream down"}}
	rt := &routedRuntime{selection: `[]`, writerErr: apiErr}
	c := newController(t, rt)

	msg, err := c.Send(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, msg.Error)
	assert.Contains(t, msg.Content, "server error")
	assert.Len(t, c.Messages(), 2)
	assert.False(t, c.Busy())
	assert.Zero(t, c.ChatLen())
	assert.Empty(t, c.Progress().Steps())
}

func TestPersonaChangeRebuildsChat(t *testing.T) {
	rt := &routedRuntime{selection: `[]`, writer: []ai.Message{say("ok")}}
	c := newController(t, rt)
	cat, idx := c.Catalog(), c.Disaggregations()

	_, err := c.Send(context.Background(), "first")
	require.NoError(t, err)
	require.Equal(t, 2, c.ChatLen())
	gen := c.Generation()

	require.NoError(t, c.UpdatePersona(persona.FactExtractor, ""))
	assert.Equal(t, gen+1, c.Generation())
	assert.Zero(t, c.ChatLen())
	assert.Same(t, cat, c.Catalog())
	assert.Same(t, idx, c.Disaggregations())
	assert.Contains(t, c.SystemPrompt(), "neutral research assistant")
	assert.Equal(t, RoleNotice, c.Messages()[2].Role)

	_, err = c.Send(context.Background(), "second")
	require.NoError(t, err)
	reqs := rt.writerRequests()
	last := reqs[len(reqs)-1].Messages
	require.Len(t, last, 2, "system prompt and new user message only")
	assert.Contains(t, last[0].Content, "neutral research assistant")
}

func TestModelAndSelectorUpdates(t *testing.T) {
	rt := &routedRuntime{selection: `[]`, writer: []ai.Message{say("ok")}}
	c := newController(t, rt)
	gen := c.Generation()

	require.NoError(t, c.UpdateSelectorModel("openai/gpt-4.1-mini"))
	assert.Equal(t, gen, c.Generation())
	assert.Equal(t, "openai/gpt-4.1-mini", c.Config().SelectorModel)

	require.NoError(t, c.UpdateModel("anthropic/claude-3.5-sonnet"))
	assert.Equal(t, gen+1, c.Generation())
	_, err := c.Send(context.Background(), "q")
	require.NoError(t, err)
	reqs := rt.writerRequests()
	assert.Equal(t, "anthropic/claude-3.5-sonnet", reqs[len(reqs)-1].Model)

	assert.Error(t, c.UpdateModel(""))
	assert.Error(t, c.UpdatePersona(persona.Custom, ""))
	assert.Error(t, c.UpdatePersona("nope", ""))
}

func TestApplyIsAllOrNothing(t *testing.T) {
	rt := &routedRuntime{selection: `[]`, writer: []ai.Message{say("ok")}}
	c := newController(t, rt)
	before, gen := c.Config(), c.Generation()

	next := before.WithPersona(persona.FactExtractor, "").WithModel("")
	require.Error(t, c.Apply(next))
	assert.Equal(t, before, c.Config())
	assert.Equal(t, gen, c.Generation())

	require.NoError(t, c.Apply(before))
	assert.Equal(t, gen, c.Generation(), "unchanged config is a no-op")

	next = before.WithSelectorModel("openai/gpt-4.1-mini")
	require.NoError(t, c.Apply(next))
	assert.Equal(t, gen, c.Generation())
	assert.Equal(t, "openai/gpt-4.1-mini", c.Config().SelectorModel)

	next = c.Config().WithPersona(persona.FactExtractor, "").WithModel("anthropic/claude-3.5-sonnet")
	require.NoError(t, c.Apply(next))
	assert.Equal(t, gen+1, c.Generation())
	assert.Equal(t, next, c.Config())
	assert.Contains(t, c.SystemPrompt(), "neutral research assistant")
}

func TestRunawayToolLoopTerminates(t *testing.T) {
	rt := &routedRuntime{selection: `[]`, writer: []ai.Message{askTool("c", "electricity_outages", "all")}}
	c := newController(t, rt)

	msg, err := c.Send(context.Background(), "loop")
	require.NoError(t, err)
	assert.True(t, msg.Exhausted)
	assert.Len(t, msg.Queries, agent.DefaultMaxRounds)
	assert.Len(t, rt.writerRequests(), agent.DefaultMaxRounds+1)
}

func TestReloadDataRebuildsToolEnum(t *testing.T) {
	rt := &routedRuntime{selection: `[]`, writer: []ai.Message{say("ok")}}
	c := newController(t, rt)

	next := dataset.NewStore(dataset.Questionnaire{}, []dataset.ResultRow{
		{Question: "income", Disaggregation: "all", Value: "1"},
		{Question: "income", Disaggregation: "region", Value: "2"},
	}, nil)
	require.NoError(t, c.ReloadData(next))
	assert.Equal(t, []string{"all", "region"}, c.Disaggregations().Values())
	assert.True(t, c.Catalog().IsValid("income"))

	_, err := c.Send(context.Background(), "q")
	require.NoError(t, err)
	reqs := rt.writerRequests()
	enum := reqs[len(reqs)-1].Tools[0].Function.Parameters.Properties["disaggregation"].Enum
	assert.Equal(t, []string{"all", "region"}, enum)
}

func TestSendEmptyInput(t *testing.T) {
	c := newController(t, &routedRuntime{})
	_, err := c.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{Store: surveyStore()})
	assert.Error(t, err)
	_, err = New(Options{Runtime: &routedRuntime{}, Store: surveyStore(), Config: Config{Model: "m"}})
	assert.Error(t, err, "selector model required")
}

func TestConfigWithers(t *testing.T) {
	base := Config{Model: "a", SelectorModel: "b", Persona: persona.Custom, CustomStyle: "terse"}
	next := base.WithPersona(persona.Economist, "ignored")
	assert.Equal(t, "", next.CustomStyle)
	assert.Equal(t, "terse", base.CustomStyle, "original is unchanged")
	assert.Equal(t, "c", base.WithModel(" c ").Model)

	reg, err := persona.NewRegistry()
	require.NoError(t, err)
	assert.NoError(t, base.Validate(reg))
	assert.Error(t, base.WithPersona(persona.Custom, "").Validate(reg))
}

func TestProgressStreamDuringTurn(t *testing.T) {
	tracker := progress.NewTracker()
	events, unsubscribe := tracker.Subscribe()
	defer unsubscribe()

	c, err := New(Options{
		Runtime: &routedRuntime{selection: `["electricity_outages"]`, writer: []ai.Message{askTool("c1", "electricity_outages", "gender"), say("done")}},
		Store:   surveyStore(),
		Config:  Config{Model: "m", SelectorModel: "s"},
		Tracker: tracker,
	})
	require.NoError(t, err)
	_, err = c.Send(context.Background(), "by gender")
	require.NoError(t, err)

	var names []string
	for {
		select {
		case ev := <-events:
			if ev.Step != nil && ev.Step.Status == progress.Completed {
				names = append(names, ev.Step.Name)
			}
			continue
		default:
		}
		break
	}
	assert.Equal(t, []string{"Identifying relevant variables", "Querying electricity_outages", "Tool round 1"}, names)
}

func TestCancelledErrorIs(t *testing.T) {
	var err error = &CancelledError{Input: "x"}
	assert.True(t, errors.Is(err, agent.ErrCancelled))
	assert.Equal(t, agent.ErrCancelled.Error(), err.Error())
}
