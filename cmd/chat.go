package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/surveyloom/internal/session"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var (
	chatProject   string
	chatOverrides sessionOverrides
)

const chatPrompt = "you> "

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive multi-turn chat over a project's survey data",
	Example: `  surveyloom chat -p wave1
  surveyloom chat -p wave1 --persona fact-extractor --model anthropic/claude-3.5-sonnet`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if chatProject == "" {
			return fmt.Errorf("--project is required")
		}
		p, err := openProject(chatProject)
		if err != nil {
			return err
		}
		store, err := projectStore(p)
		if err != nil {
			return err
		}
		b, err := newControllerBuilder(p, chatOverrides, newLogger())
		if err != nil {
			return err
		}
		ctrl, err := b.open(store)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printBanner(out, p.Name, ctrl)
		if !isTerminal(os.Stdin) {
			return runChatLines(cmd.Context(), ctrl, os.Stdin, out)
		}
		return runChatREPL(cmd.Context(), ctrl, filepath.Join(p.RootDir(), "chat_history"), out)
	},
}

func printBanner(w io.Writer, name string, ctrl *session.Controller) {
	cfg := ctrl.Config()
	fmt.Fprintf(w, "surveyloom chat (project: %s, %d variables)\n", name, ctrl.Catalog().Len())
	fmt.Fprintf(w, "model=%s selector=%s persona=%s\n", cfg.Model, cfg.SelectorModel, cfg.Persona)
	fmt.Fprintln(w, "Type /help for commands, /quit to exit. Ctrl-C cancels a running answer.")
	fmt.Fprintln(w)
}

func runChatREPL(ctx context.Context, ctrl *session.Controller, historyFile string, out io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          chatPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    newChatCompleter(ctrl),
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := handleSlashCommand(ctrl, line, out); quit {
				return nil
			}
			continue
		}
		if restore := runChatTurn(ctx, ctrl, line, out); restore != "" {
			// Put the cancelled question back on the prompt for editing.
			_, _ = rl.WriteStdin([]byte(restore))
		}
	}
}

// runChatLines drives the chat from piped input, one message per line.
func runChatLines(ctx context.Context, ctrl *session.Controller, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if handleSlashCommand(ctrl, line, out) {
				return nil
			}
			continue
		}
		runChatTurn(ctx, ctrl, line, out)
	}
	return sc.Err()
}

// runChatTurn sends one message. Ctrl-C while it runs cancels the turn; the
// original input is returned so the caller can restore it.
func runChatTurn(ctx context.Context, ctrl *session.Controller, input string, out io.Writer) string {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	done := make(chan struct{})
	go func() {
		select {
		case <-sig:
			ctrl.Cancel()
		case <-done:
		}
	}()
	defer func() {
		signal.Stop(sig)
		close(done)
	}()

	stop := func() {}
	if isTerminal(os.Stdout) {
		stop = progressPrinter(out, ctrl.Progress())
	}
	msg, err := ctrl.Send(ctx, input)
	stop()

	var cancelled *session.CancelledError
	switch {
	case errors.As(err, &cancelled):
		fmt.Fprintln(out, "⚠ Cancelled. Your question is back on the prompt.")
		return cancelled.Input
	case err != nil:
		fmt.Fprintf(out, "✗ Error: %v\n", err)
		return ""
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, msg.Content)
	if msg.Exhausted {
		fmt.Fprintln(out, "⚠ Tool round limit reached; the answer may be incomplete.")
	}
	fmt.Fprintln(out)
	return ""
}

// handleSlashCommand runs a /command and reports whether to quit.
func handleSlashCommand(ctrl *session.Controller, line string, out io.Writer) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	arg := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))

	switch command {
	case "/quit", "/exit":
		return true

	case "/help":
		printChatHelp(out)

	case "/persona":
		if len(parts) < 2 {
			fmt.Fprintf(out, "Current persona: %s (available: %s)\n", ctrl.Config().Persona, strings.Join(ctrl.Personas().IDs(), ", "))
			return false
		}
		guide := strings.TrimSpace(strings.TrimPrefix(arg, parts[1]))
		if err := ctrl.UpdatePersona(parts[1], guide); err != nil {
			fmt.Fprintf(out, "✗ Error: %v\n", err)
			return false
		}
		fmt.Fprintf(out, "✓ Persona set to %s. Conversation context was reset.\n", ctrl.Config().Persona)

	case "/model":
		if arg == "" {
			fmt.Fprintf(out, "Current model: %s\n", ctrl.Config().Model)
			return false
		}
		if err := ctrl.UpdateModel(arg); err != nil {
			fmt.Fprintf(out, "✗ Error: %v\n", err)
			return false
		}
		fmt.Fprintf(out, "✓ Model set to %s. Conversation context was reset.\n", ctrl.Config().Model)

	case "/selector":
		if arg == "" {
			fmt.Fprintf(out, "Current selector model: %s\n", ctrl.Config().SelectorModel)
			return false
		}
		if err := ctrl.UpdateSelectorModel(arg); err != nil {
			fmt.Fprintf(out, "✗ Error: %v\n", err)
			return false
		}
		fmt.Fprintf(out, "✓ Selector model set to %s.\n", ctrl.Config().SelectorModel)

	case "/queries":
		msg, ok := lastAnswer(ctrl)
		if !ok {
			fmt.Fprintln(out, "(no answers yet)")
			return false
		}
		if len(msg.Variables) > 0 {
			fmt.Fprintf(out, "Variables identified: %s\n", strings.Join(msg.Variables, ", "))
		}
		renderQueries(out, msg.Queries)

	case "/trace":
		msg, ok := lastAnswer(ctrl)
		if !ok {
			fmt.Fprintln(out, "(no answers yet)")
			return false
		}
		for _, s := range msg.Steps {
			fmt.Fprintln(out, formatStep(s))
		}

	default:
		fmt.Fprintf(out, "Unknown command: %s (type /help for commands)\n", command)
	}
	return false
}

func lastAnswer(ctrl *session.Controller) (session.Message, bool) {
	msgs := ctrl.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == session.RoleAssistant {
			return msgs[i], true
		}
	}
	return session.Message{}, false
}

func printChatHelp(w io.Writer) {
	help := `
Commands:
  /persona [id] [guide]  Show or switch the writing persona (custom takes a guide)
  /model [id]            Show or switch the writer model
  /selector [id]         Show or switch the variable selector model
  /queries               Show the data queries behind the last answer
  /trace                 Show the progress trace of the last answer
  /help                  Show this help message
  /quit                  Exit

Switching persona or model starts a fresh conversation context; the
transcript above is kept.`
	fmt.Fprintln(w, help)
}

func newChatCompleter(ctrl *session.Controller) *readline.PrefixCompleter {
	var personas []readline.PrefixCompleterInterface
	for _, id := range ctrl.Personas().IDs() {
		personas = append(personas, readline.PcItem(id))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("/persona", personas...),
		readline.PcItem("/model"),
		readline.PcItem("/selector"),
		readline.PcItem("/queries"),
		readline.PcItem("/trace"),
		readline.PcItem("/help"),
		readline.PcItem("/quit"),
	)
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatProject, "project", "p", "", "project name (\".\" for the enclosing project directory)")
	bindSessionFlags(chatCmd, &chatOverrides)
}
