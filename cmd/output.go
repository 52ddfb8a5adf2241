package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/KaramelBytes/surveyloom/internal/agent"
	"github.com/KaramelBytes/surveyloom/internal/ai"
	"github.com/KaramelBytes/surveyloom/internal/session"
	"github.com/KaramelBytes/surveyloom/internal/utils"
)

type outputOptions struct {
	JSON         bool
	Quiet        bool
	ShowQueries  bool
	Project      string
	Config       session.Config
	Question     string
	OutputPath   string
	OutputFormat string
	Writer       io.Writer
}

type answerJSON struct {
	Project         string                `json:"project"`
	Model           string                `json:"model"`
	SelectorModel   string                `json:"selector_model"`
	Persona         string                `json:"persona"`
	Question        string                `json:"question"`
	Content         string                `json:"content"`
	Variables       []string              `json:"variables"`
	Queries         []agent.ExecutedQuery `json:"queries"`
	Trace           *agent.Trace          `json:"trace,omitempty"`
	RoundsExhausted bool                  `json:"rounds_exhausted"`
	Usage           *ai.Usage             `json:"usage,omitempty"`
}

func newAnswerJSON(msg session.Message, opts outputOptions) answerJSON {
	vars := msg.Variables
	if vars == nil {
		vars = []string{}
	}
	queries := msg.Queries
	if queries == nil {
		queries = []agent.ExecutedQuery{}
	}
	return answerJSON{
		Project:         opts.Project,
		Model:           opts.Config.Model,
		SelectorModel:   opts.Config.SelectorModel,
		Persona:         opts.Config.Persona,
		Question:        opts.Question,
		Content:         msg.Content,
		Variables:       vars,
		Queries:         queries,
		Trace:           msg.Trace,
		RoundsExhausted: msg.Exhausted,
		Usage:           msg.Usage,
	}
}

func formatAndWriteOutput(msg session.Message, opts outputOptions) error {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	if opts.JSON {
		if err := writeJSON(w, newAnswerJSON(msg, opts)); err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
	} else {
		if opts.Quiet {
			fmt.Fprintln(w, msg.Content)
		} else {
			fmt.Fprintln(w, "\n=== Report ===")
			fmt.Fprintln(w, msg.Content)
		}
		if opts.ShowQueries {
			fmt.Fprintln(w, "\n=== Queries ===")
			renderQueries(w, msg.Queries)
		}
		if !opts.Quiet && msg.Usage != nil && msg.Usage.TotalTokens > 0 {
			fmt.Fprintf(w, "\nTokens: prompt=%d completion=%d", msg.Usage.PromptTokens, msg.Usage.CompletionTokens)
			if cost, ok := ai.EstimateCostUSD(opts.Config.Model, msg.Usage.PromptTokens, msg.Usage.CompletionTokens); ok && cost > 0 {
				fmt.Fprintf(w, " (~$%.4f)", cost)
			}
			fmt.Fprintln(w)
		}
	}

	if opts.OutputPath == "" {
		return nil
	}

	switch opts.OutputFormat {
	case "", "text", "markdown", "md":
		if err := utils.SafeWriteFile(opts.OutputPath, []byte(msg.Content), 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	case "json":
		b, err := utils.PrettyJSON(newAnswerJSON(msg, opts))
		if err != nil {
			return err
		}
		if err := utils.SafeWriteFile(opts.OutputPath, b, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	default:
		return fmt.Errorf("unknown --format: %s (use text|markdown|json)", opts.OutputFormat)
	}
	if !opts.Quiet {
		fmt.Fprintf(w, "✓ Wrote %s\n", opts.OutputPath)
	}
	return nil
}
