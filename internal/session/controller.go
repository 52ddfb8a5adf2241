// Package session owns the conversational lifecycle around the agent: the
// immutable session config, chat rebuilds on persona or model change, turn
// serialization, cancellation and the display transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/surveyloom/internal/agent"
	"github.com/KaramelBytes/surveyloom/internal/ai"
	"github.com/KaramelBytes/surveyloom/internal/catalog"
	"github.com/KaramelBytes/surveyloom/internal/dataset"
	"github.com/KaramelBytes/surveyloom/internal/logging"
	"github.com/KaramelBytes/surveyloom/internal/metrics"
	"github.com/KaramelBytes/surveyloom/internal/persona"
	"github.com/KaramelBytes/surveyloom/internal/progress"
	"github.com/KaramelBytes/surveyloom/internal/query"
)

var (
	// ErrTurnInProgress rejects a send or rebuild while a turn is running.
	ErrTurnInProgress = errors.New("a turn is already in progress")
	ErrEmptyInput     = errors.New("message is empty")
)

// CancelledError is returned by Send when the turn was cancelled. Input is
// the user's original text so the caller can restore it.
type CancelledError struct {
	Input string
}

func (e *CancelledError) Error() string { return agent.ErrCancelled.Error() }

func (e *CancelledError) Is(target error) bool { return target == agent.ErrCancelled }

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleNotice marks controller-generated entries such as rebuild notes.
	RoleNotice Role = "notice"
)

// Message is one transcript entry as shown to the user.
type Message struct {
	ID         string                `json:"id"`
	Role       Role                  `json:"role"`
	Content    string                `json:"content"`
	Error      bool                  `json:"error,omitempty"`
	Variables  []string              `json:"variables,omitempty"`
	Queries    []agent.ExecutedQuery `json:"queries,omitempty"`
	Steps      []progress.Step       `json:"steps,omitempty"`
	Trace      *agent.Trace          `json:"trace,omitempty"`
	Exhausted  bool                  `json:"rounds_exhausted,omitempty"`
	Usage      *ai.Usage             `json:"usage,omitempty"`
	Generation int                   `json:"generation"`
	CreatedAt  time.Time             `json:"created_at"`
}

type Options struct {
	Runtime     ai.Runtime
	Provider    string
	Store       *dataset.Store
	Personas    *persona.Registry
	Config      Config
	Logger      *slog.Logger
	Tracker     *progress.Tracker
	MaxRounds   int
	MaxTokens   int
	Temperature float64
}

// Controller serializes turns against one chat context. All exported
// methods are safe for concurrent use.
type Controller struct {
	runtime     ai.Runtime
	provider    string
	personas    *persona.Registry
	logger      *slog.Logger
	tracker     *progress.Tracker
	maxRounds   int
	maxTokens   int
	temperature float64

	mu         sync.Mutex
	cfg        Config
	store      *dataset.Store
	catalog    *catalog.Catalog
	index      *catalog.DisaggregationIndex
	engine     *query.Engine
	prompt     string
	chat       *agent.ChatSession
	selector   *agent.Selector
	orch       *agent.Orchestrator
	generation int
	messages   []Message
	busy       bool
	cancel     context.CancelFunc
}

// New validates the config, indexes the store and opens the first chat.
func New(opts Options) (*Controller, error) {
	if opts.Runtime == nil {
		return nil, fmt.Errorf("session: runtime is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("session: data store is required")
	}
	c := &Controller{
		runtime:     opts.Runtime,
		provider:    opts.Provider,
		personas:    opts.Personas,
		logger:      opts.Logger,
		tracker:     opts.Tracker,
		maxRounds:   opts.MaxRounds,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	if c.tracker == nil {
		c.tracker = progress.NewTracker()
	}
	if c.personas == nil {
		reg, err := persona.NewRegistry()
		if err != nil {
			return nil, err
		}
		c.personas = reg
	}
	if opts.Config.Persona == "" {
		opts.Config.Persona = persona.Default
	}
	if err := opts.Config.Validate(c.personas); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexLocked(opts.Store)
	if err := c.rebuildLocked(opts.Config, "init"); err != nil {
		return nil, err
	}
	return c, nil
}

// indexLocked derives the catalog, disaggregation index and query engine
// from store. Load warnings are logged, never fatal.
func (c *Controller) indexLocked(store *dataset.Store) {
	c.store = store
	c.catalog = catalog.Build(store.Questionnaire(), store.Results())
	c.index = catalog.BuildDisaggregations(store.Results())
	c.engine = query.NewEngine(store)
	for _, w := range store.Warnings() {
		c.logger.Warn("data load warning", "detail", w)
	}
	if c.index.Len() > 0 && !c.index.HasAll() {
		c.logger.Warn("results have no \"all\" disaggregation; overall figures are unavailable")
	}
	c.logger.Info("survey data indexed",
		"variables", c.catalog.Len(),
		"declared", c.catalog.DeclaredCount(),
		"analysis_time", c.catalog.AnalysisTimeCount(),
		"disaggregations", c.index.Len(),
		"qualitative_rows", len(store.Qualitative()),
	)
}

// rebuildLocked opens a fresh chat from cfg and the current index. Prior
// chat history is dropped; the display transcript is kept.
func (c *Controller) rebuildLocked(cfg Config, reason string) error {
	p, err := c.personas.Resolve(cfg.Persona, cfg.CustomStyle)
	if err != nil {
		return err
	}
	prompt := BuildSystemPrompt(p, c.catalog, c.index)
	chat := agent.NewChatSession(c.runtime, agent.ChatOptions{
		Model:        cfg.Model,
		SystemPrompt: prompt,
		Tools:        agent.BuildTools(c.index),
		MaxTokens:    c.maxTokens,
		Temperature:  c.temperature,
	})
	c.cfg = cfg
	c.prompt = prompt
	c.chat = chat
	c.selector = agent.NewSelector(c.runtime, cfg.SelectorModel, c.catalog, c.logger)
	c.orch = agent.NewOrchestrator(agent.OrchestratorOptions{
		Engine:    c.engine,
		Catalog:   c.catalog,
		Tracker:   c.tracker,
		Logger:    c.logger,
		MaxRounds: c.maxRounds,
	})
	c.generation++
	metrics.SessionRebuilds.WithLabelValues(reason).Inc()
	if !ai.SupportsTools(cfg.Model) {
		c.logger.Warn("model is not known to support tool calling", "model", cfg.Model)
	}
	c.logger.Info("chat session initialized",
		"reason", reason,
		"generation", c.generation,
		"model", cfg.Model,
		"selector_model", cfg.SelectorModel,
		"persona", p.ID,
	)
	if reason != "init" && len(c.messages) > 0 {
		c.messages = append(c.messages, Message{
			ID:         uuid.NewString(),
			Role:       RoleNotice,
			Content:    fmt.Sprintf("Session rebuilt (%s). Earlier turns are no longer in the model's context.", reason),
			Generation: c.generation,
			CreatedAt:  time.Now().UTC(),
		})
	}
	return nil
}

// UpdateModel switches the writer model and rebuilds the chat.
func (c *Controller) UpdateModel(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrTurnInProgress
	}
	next := c.cfg.WithModel(id)
	if err := next.Validate(c.personas); err != nil {
		return err
	}
	return c.rebuildLocked(next, "model")
}

// UpdatePersona switches persona (and custom guide) and rebuilds the chat.
func (c *Controller) UpdatePersona(id, customGuide string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrTurnInProgress
	}
	next := c.cfg.WithPersona(id, customGuide)
	if err := next.Validate(c.personas); err != nil {
		return err
	}
	return c.rebuildLocked(next, "persona")
}

// UpdateSelectorModel swaps the selector model. The chat is not rebuilt
// because the selector is not part of it.
func (c *Controller) UpdateSelectorModel(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrTurnInProgress
	}
	next := c.cfg.WithSelectorModel(id)
	if err := next.Validate(c.personas); err != nil {
		return err
	}
	c.cfg = next
	c.selector = agent.NewSelector(c.runtime, next.SelectorModel, c.catalog, c.logger)
	c.logger.Info("selector model updated", "selector_model", next.SelectorModel)
	return nil
}

// Apply switches to next as a whole. Nothing changes unless the combined
// config validates. The chat is rebuilt only when the model or persona
// differs.
func (c *Controller) Apply(next Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrTurnInProgress
	}
	if err := next.Validate(c.personas); err != nil {
		return err
	}
	cur := c.cfg
	switch {
	case next.Persona != cur.Persona || next.CustomStyle != cur.CustomStyle:
		return c.rebuildLocked(next, "persona")
	case next.Model != cur.Model:
		return c.rebuildLocked(next, "model")
	case next.SelectorModel != cur.SelectorModel:
		c.cfg = next
		c.selector = agent.NewSelector(c.runtime, next.SelectorModel, c.catalog, c.logger)
		c.logger.Info("selector model updated", "selector_model", next.SelectorModel)
	}
	return nil
}

// ReloadData replaces the survey data, re-indexes it and rebuilds the chat
// so the tool enum matches the new disaggregations.
func (c *Controller) ReloadData(store *dataset.Store) error {
	if store == nil {
		return fmt.Errorf("session: data store is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrTurnInProgress
	}
	c.indexLocked(store)
	return c.rebuildLocked(c.cfg, "data")
}

// Send runs one turn: variable selection, then the tool-using writer loop.
// On success the user message and reply are appended to the transcript. A
// provider failure is converted into an assistant error message and
// returned with a nil error. Cancellation appends nothing and returns a
// *CancelledError carrying input.
func (c *Controller) Send(ctx context.Context, input string) (Message, error) {
	if strings.TrimSpace(input) == "" {
		return Message{}, ErrEmptyInput
	}
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		metrics.TurnsTotal.WithLabelValues("rejected").Inc()
		return Message{}, ErrTurnInProgress
	}
	ctx, cancel := context.WithCancel(ctx)
	c.busy = true
	c.cancel = cancel
	chat, sel, orch := c.chat, c.selector, c.orch
	gen, cfg := c.generation, c.cfg
	c.mu.Unlock()

	metrics.ActiveTurns.Inc()
	defer func() {
		cancel()
		c.mu.Lock()
		c.busy = false
		c.cancel = nil
		c.mu.Unlock()
		metrics.ActiveTurns.Dec()
	}()

	c.tracker.Reset()
	start := time.Now()
	log := c.logger.With("generation", gen, "model", cfg.Model)

	stepID := c.tracker.Start("Identifying relevant variables", nil)
	vars := sel.Select(ctx, input)
	c.tracker.Complete(stepID, map[string]any{"variables": vars, "count": len(vars)})
	log.Debug("variables selected", "variables", vars)

	var (
		res *agent.TurnResult
		err error
	)
	if ctx.Err() != nil {
		err = agent.ErrCancelled
	} else {
		res, err = orch.Run(ctx, chat, input, vars)
	}
	if errors.Is(err, agent.ErrCancelled) {
		c.tracker.Reset()
		metrics.TurnsTotal.WithLabelValues("cancelled").Inc()
		log.Info("turn cancelled", "elapsed", time.Since(start))
		return Message{}, &CancelledError{Input: input}
	}

	now := time.Now().UTC()
	user := Message{ID: uuid.NewString(), Role: RoleUser, Content: input, Generation: gen, CreatedAt: now}
	if err != nil {
		described := ai.Describe(c.provider, cfg.Model, err)
		log.Error("turn failed", "error", err)
		metrics.TurnsTotal.WithLabelValues("failed").Inc()
		reply := Message{
			ID:         uuid.NewString(),
			Role:       RoleAssistant,
			Content:    "Error: " + described.Error(),
			Error:      true,
			Variables:  vars,
			Generation: gen,
			CreatedAt:  now,
		}
		c.tracker.Reset()
		c.appendMessages(user, reply)
		return reply, nil
	}

	usage := res.Usage
	reply := Message{
		ID:         uuid.NewString(),
		Role:       RoleAssistant,
		Content:    res.Text,
		Variables:  vars,
		Queries:    res.Queries,
		Steps:      c.tracker.Steps(),
		Trace:      &res.Trace,
		Exhausted:  res.Exhausted,
		Usage:      &usage,
		Generation: gen,
		CreatedAt:  now,
	}
	c.appendMessages(user, reply)
	metrics.TurnsTotal.WithLabelValues("completed").Inc()
	log.Info("turn completed",
		"elapsed", time.Since(start),
		"variables", len(vars),
		"queries", len(res.Queries),
		"rounds", res.Rounds,
		"rounds_exhausted", res.Exhausted,
	)
	return reply, nil
}

func (c *Controller) appendMessages(msgs ...Message) {
	c.mu.Lock()
	c.messages = append(c.messages, msgs...)
	c.mu.Unlock()
}

// Cancel trips the in-flight turn. It reports whether a turn was running.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Messages returns a copy of the display transcript.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

func (c *Controller) Progress() *progress.Tracker { return c.tracker }

func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *Controller) Catalog() *catalog.Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog
}

func (c *Controller) Disaggregations() *catalog.DisaggregationIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

func (c *Controller) Engine() *query.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

func (c *Controller) Store() *dataset.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// Generation counts chat rebuilds, starting at 1.
func (c *Controller) Generation() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// SystemPrompt returns the prompt seeding the current chat.
func (c *Controller) SystemPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt
}

// ChatLen is the number of messages in the current chat context.
func (c *Controller) ChatLen() int {
	c.mu.Lock()
	chat := c.chat
	c.mu.Unlock()
	return chat.Len()
}

// Personas exposes the registry the controller resolves against.
func (c *Controller) Personas() *persona.Registry { return c.personas }
