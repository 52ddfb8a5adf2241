package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/KaramelBytes/surveyloom/internal/agent"
	"github.com/KaramelBytes/surveyloom/internal/progress"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// renderQueries prints the tool calls a turn executed.
func renderQueries(w io.Writer, queries []agent.ExecutedQuery) {
	if len(queries) == 0 {
		fmt.Fprintln(w, "(no queries executed)")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Type", "Variable", "Disaggregation", "Result"})
	for i, q := range queries {
		result := ""
		switch {
		case q.Error != "":
			result = "error: " + q.Error
		case q.Kind == agent.KindQualitative:
			if q.Found {
				result = fmt.Sprintf("%d themes", q.Rows)
			} else {
				result = "no analysis"
			}
		default:
			result = fmt.Sprintf("%d rows, n=%d", q.Rows, q.SampleSize)
		}
		t.AppendRow(table.Row{i + 1, string(q.Kind), q.Variable, q.Disaggregation, result})
	}
	t.Render()
}

// progressPrinter echoes trace steps to w while a turn runs. The returned
// stop function drains and detaches it.
func progressPrinter(w io.Writer, tracker *progress.Tracker) (stop func()) {
	events, unsubscribe := tracker.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if ev.Type != progress.EventStep || ev.Step == nil || ev.Step.Status != progress.Completed {
				continue
			}
			fmt.Fprintln(w, formatStep(*ev.Step))
		}
	}()
	return func() {
		unsubscribe()
		<-done
	}
}

func formatStep(s progress.Step) string {
	mark := "…"
	if s.Status == progress.Completed {
		mark = "✓"
	}
	var parts []string
	for _, k := range []string{"count", "rows", "sample_size", "themes", "calls"} {
		if v, ok := s.Details[k]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("  %s %s", mark, s.Name)
	}
	return fmt.Sprintf("  %s %s (%s)", mark, s.Name, strings.Join(parts, ", "))
}
