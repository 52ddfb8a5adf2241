// Package agent drives the two-pass LLM pipeline: a selector call that maps
// a question to catalog variables, and a tool-using writer conversation that
// queries the survey data and drafts the report.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/KaramelBytes/surveyloom/internal/ai"
)

// ErrCancelled reports that a turn was aborted by its caller. It is an
// expected outcome, not a failure.
var ErrCancelled = errors.New("turn cancelled")

// ErrEmptyResponse is returned when the provider answers with no choices.
var ErrEmptyResponse = errors.New("no content returned from model")

type ChatOptions struct {
	Model        string
	SystemPrompt string
	Tools        []ai.Tool
	MaxTokens    int
	Temperature  float64
}

// ChatSession is a multi-turn conversation seeded with a system prompt and
// a toolset. History only grows through committed exchanges.
type ChatSession struct {
	runtime ai.Runtime
	opts    ChatOptions

	mu      sync.Mutex
	history []ai.Message
}

func NewChatSession(rt ai.Runtime, opts ChatOptions) *ChatSession {
	return &ChatSession{runtime: rt, opts: opts}
}

// Model returns the model id the session was opened with.
func (c *ChatSession) Model() string { return c.opts.Model }

// SystemPrompt returns the prompt that seeded the session.
func (c *ChatSession) SystemPrompt() string { return c.opts.SystemPrompt }

// Tools returns the declared toolset.
func (c *ChatSession) Tools() []ai.Tool { return append([]ai.Tool(nil), c.opts.Tools...) }

// History returns a copy of the committed messages (system prompt excluded).
func (c *ChatSession) History() []ai.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ai.Message(nil), c.history...)
}

// Len is the number of committed messages.
func (c *ChatSession) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// Begin starts staging one user turn.
func (c *ChatSession) Begin() *Exchange {
	return &Exchange{chat: c}
}

// Exchange stages the messages of one turn. Nothing reaches the session
// history until Commit, so an abandoned exchange leaves no trace.
type Exchange struct {
	chat   *ChatSession
	staged []ai.Message
	usage  ai.Usage
}

// Send stages msgs, asks the model for the next message and stages the reply.
// Cancellation of ctx wins over an outstanding call and yields ErrCancelled.
func (x *Exchange) Send(ctx context.Context, msgs ...ai.Message) (ai.Message, error) {
	if err := ctx.Err(); err != nil {
		return ai.Message{}, ErrCancelled
	}
	x.staged = append(x.staged, msgs...)

	c := x.chat
	c.mu.Lock()
	messages := make([]ai.Message, 0, len(c.history)+len(x.staged)+1)
	if c.opts.SystemPrompt != "" {
		messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: c.opts.SystemPrompt})
	}
	messages = append(messages, c.history...)
	c.mu.Unlock()
	messages = append(messages, x.staged...)

	req := ai.GenerateRequest{
		Model:       c.opts.Model,
		Messages:    messages,
		Tools:       c.opts.Tools,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	}
	resp, err := raceGenerate(ctx, c.runtime, req)
	if err != nil {
		return ai.Message{}, err
	}
	reply, ok := resp.FirstMessage()
	if !ok {
		return ai.Message{}, ErrEmptyResponse
	}
	reply.Role = ai.RoleAssistant
	x.staged = append(x.staged, reply)
	x.usage.PromptTokens += resp.Usage.PromptTokens
	x.usage.CompletionTokens += resp.Usage.CompletionTokens
	x.usage.TotalTokens += resp.Usage.TotalTokens
	return reply, nil
}

// Stage adds messages without calling the model.
func (x *Exchange) Stage(msgs ...ai.Message) { x.staged = append(x.staged, msgs...) }

// Usage sums token usage over every call in the exchange.
func (x *Exchange) Usage() ai.Usage { return x.usage }

// Commit appends the staged messages to the session history.
func (x *Exchange) Commit() {
	c := x.chat
	c.mu.Lock()
	c.history = append(c.history, x.staged...)
	c.mu.Unlock()
	x.staged = nil
}

type generateResult struct {
	resp *ai.GenerateResponse
	err  error
}

// raceGenerate runs the provider call and returns as soon as either the
// call finishes or ctx is done. The runtime also receives ctx, so an
// abandoned call is torn down by the transport.
func raceGenerate(ctx context.Context, rt ai.Runtime, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	if rt == nil {
		return nil, fmt.Errorf("no runtime configured")
	}
	done := make(chan generateResult, 1)
	go func() {
		resp, err := rt.Generate(ctx, req)
		done <- generateResult{resp: resp, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ErrCancelled
	case r := <-done:
		if r.err != nil && ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return r.resp, r.err
	}
}
