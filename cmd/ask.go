package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/KaramelBytes/surveyloom/internal/agent"
	"github.com/KaramelBytes/surveyloom/internal/ai"
	"github.com/KaramelBytes/surveyloom/internal/session"
	"github.com/KaramelBytes/surveyloom/internal/utils"
	"github.com/spf13/cobra"
)

var (
	askProject      string
	askOverrides    sessionOverrides
	askShowQueries  bool
	askJSON         bool
	askQuiet        bool
	askOutputPath   string
	askOutputFmt    string
	askDryRun       bool
	askPreviewLimit int
	askTimeoutSec   int
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question about a project's survey data",
	Example: `  surveyloom ask -p wave1 "How common were electricity outages, and did it differ by gender?"
  surveyloom ask -p wave1 --persona policy-brief --show-queries "Why do people distrust banks?"
  surveyloom ask -p wave1 --dry-run "anything"
  surveyloom ask -p wave1 --json --output report.json "Summarize household size"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if askProject == "" {
			return fmt.Errorf("--project is required")
		}
		if askJSON {
			askQuiet = true
		}
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return session.ErrEmptyInput
		}
		p, err := openProject(askProject)
		if err != nil {
			return err
		}
		store, err := projectStore(p)
		if err != nil {
			return err
		}
		logger := newLogger()
		b, err := newControllerBuilder(p, askOverrides, logger)
		if err != nil {
			return err
		}
		ctrl, err := b.open(store)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if askDryRun {
			return printDryRun(out, ctrl, question)
		}

		timeout := time.Duration(askTimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		ctx, stopSignals := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stopSignals()
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if !askQuiet {
			fmt.Fprintf(os.Stderr, "⚙ Asking model=%s persona=%s ...\n", ctrl.Config().Model, ctrl.Config().Persona)
		}
		stop := func() {}
		if !askQuiet && isTerminal(os.Stderr) {
			stop = progressPrinter(os.Stderr, ctrl.Progress())
		}
		msg, err := ctrl.Send(ctx, question)
		stop()
		if err != nil {
			if errors.Is(err, agent.ErrCancelled) {
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return fmt.Errorf("turn timed out after %s", timeout)
				}
				return fmt.Errorf("turn cancelled")
			}
			return err
		}
		if msg.Error {
			return errors.New(strings.TrimPrefix(msg.Content, "Error: "))
		}
		if msg.Exhausted && !askQuiet {
			fmt.Fprintf(os.Stderr, "⚠ Warning: tool round limit reached; the answer may be incomplete\n")
		}
		return formatAndWriteOutput(msg, outputOptions{
			JSON:         askJSON,
			Quiet:        askQuiet,
			ShowQueries:  askShowQueries,
			Project:      p.Name,
			Config:       ctrl.Config(),
			Question:     question,
			OutputPath:   askOutputPath,
			OutputFormat: askOutputFmt,
			Writer:       out,
		})
	},
}

// printDryRun shows what a turn would send without calling the model.
func printDryRun(w io.Writer, ctrl *session.Controller, question string) error {
	prompt := ctrl.SystemPrompt()
	breakdown := utils.TokenBreakdown(map[string]string{
		"system":          prompt,
		"variables":       ctrl.Catalog().ContextBlock(),
		"disaggregations": ctrl.Disaggregations().PromptText(),
		"question":        question,
	})
	total := utils.CountChatTokens(prompt, question)
	model := ctrl.Config().Model
	fmt.Fprintf(w, "Model: %s (selector %s), persona: %s\n", model, ctrl.Config().SelectorModel, ctrl.Config().Persona)
	fmt.Fprintf(w, "Tokens: total≈%d (system≈%d of which variables≈%d, disaggregations≈%d; question≈%d)\n",
		total, breakdown["system"], breakdown["variables"], breakdown["disaggregations"], breakdown["question"])
	if mi, ok := ai.LookupModel(model); ok && total > mi.ContextTokens {
		fmt.Fprintf(w, "⚠ Prompt (≈%d tokens) exceeds %s context window (~%d tokens).\n", total, mi.Name, mi.ContextTokens)
	}
	maxTokens := 1024
	if cfg != nil && cfg.MaxTokens > 0 {
		maxTokens = cfg.MaxTokens
	}
	if cost, ok := ai.EstimateCostUSD(model, total, maxTokens); ok {
		fmt.Fprintf(w, "Estimated cost of the first call: ~$%.4f\n", cost)
	}
	fmt.Fprintln(w, "\n--dry-run: no API call will be made. System prompt below --")
	if askPreviewLimit > 0 {
		fmt.Fprintln(w, utils.TruncateToTokenLimit(prompt, askPreviewLimit))
		return nil
	}
	fmt.Fprintln(w, prompt)
	return nil
}

func bindSessionFlags(c *cobra.Command, o *sessionOverrides) {
	c.Flags().StringVar(&o.Model, "model", "", "writer model (default from project or config)")
	c.Flags().StringVar(&o.SelectorModel, "selector-model", "", "variable selector model (default from project or config)")
	c.Flags().StringVar(&o.Persona, "persona", "", "writing persona id (see `surveyloom personas`)")
	c.Flags().StringVar(&o.Style, "style", "", "style guide text for the custom persona")
	c.Flags().StringVar(&o.Provider, "provider", "", "provider: openrouter|ollama")
	c.Flags().StringVar(&o.OllamaHost, "ollama-host", "", "override Ollama host (e.g., http://127.0.0.1:11434)")
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askProject, "project", "p", "", "project name (\".\" for the enclosing project directory)")
	bindSessionFlags(askCmd, &askOverrides)
	askCmd.Flags().BoolVar(&askShowQueries, "show-queries", false, "print the data queries the model ran")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "emit the answer, queries and trace as JSON")
	askCmd.Flags().BoolVar(&askQuiet, "quiet", false, "suppress non-essential output")
	askCmd.Flags().StringVar(&askOutputPath, "output", "", "optional path to write the answer")
	askCmd.Flags().StringVar(&askOutputFmt, "format", "markdown", "output file format: text|markdown|json")
	askCmd.Flags().BoolVar(&askDryRun, "dry-run", false, "print the system prompt and token estimate without calling the model")
	askCmd.Flags().IntVar(&askPreviewLimit, "preview-tokens", 0, "with --dry-run, truncate the printed prompt to this many tokens")
	askCmd.Flags().IntVar(&askTimeoutSec, "timeout-sec", 300, "turn timeout in seconds")
}
