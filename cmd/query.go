package cmd

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/surveyloom/internal/dataset"
	"github.com/KaramelBytes/surveyloom/internal/query"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	qProject string
	qDisagg  string
	qJSON    bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run the data lookups the model uses, without a model",
}

var queryQuantCmd = &cobra.Command{
	Use:     "quant <question>",
	Short:   "Quantitative results for a question and disaggregation",
	Example: `  surveyloom query quant -p wave1 electricity_outages --disaggregation gender`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadProjectStore(qProject)
		if err != nil {
			return err
		}
		rows := query.NewEngine(store).Quantitative(args[0], qDisagg)
		out := cmd.OutOrStdout()
		if qJSON {
			return writeJSON(out, rows)
		}
		if len(rows) == 0 {
			fmt.Fprintf(out, "(no rows for %s / %s)\n", args[0], qDisagg)
			return nil
		}
		t := newTable(out)
		t.AppendHeader(table.Row{"Group", "Answer", "Value", "Unit", "Sample size"})
		for _, r := range rows {
			t.AppendRow(table.Row{r.Group, r.Answer, r.Value, r.Unit, r.SampleSize})
		}
		t.Render()
		fmt.Fprintf(out, "(%d rows, n=%d)\n", len(rows), query.SampleSizes(rows))
		return nil
	},
}

var queryQualCmd = &cobra.Command{
	Use:     "qual <question>",
	Short:   "Qualitative overview and themes for a question",
	Example: `  surveyloom query qual -p wave1 trust_in_banks`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadProjectStore(qProject)
		if err != nil {
			return err
		}
		res := query.NewEngine(store).Qualitative(args[0])
		out := cmd.OutOrStdout()
		if qJSON {
			return writeJSON(out, res)
		}
		if !res.Found {
			fmt.Fprintln(out, res.Message)
			return nil
		}
		fmt.Fprintf(out, "Overview: %s\n\n", res.Overview)
		t := newTable(out)
		t.AppendHeader(table.Row{"Theme", "Prevalence", "Count", "Insight", "Quotes"})
		t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: 50}, {Number: 5, WidthMax: 50}})
		for _, th := range res.Themes {
			t.AppendRow(table.Row{th.Theme, th.Prevalence, th.Count, th.Insight, strings.Join(th.Quotes, "\n")})
		}
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.AddCommand(queryQuantCmd)
	queryCmd.AddCommand(queryQualCmd)
	queryCmd.PersistentFlags().StringVarP(&qProject, "project", "p", "", "project name")
	queryCmd.PersistentFlags().BoolVar(&qJSON, "json", false, "print the raw tool payload as JSON")
	queryQuantCmd.Flags().StringVar(&qDisagg, "disaggregation", dataset.AllDisaggregation, "disaggregation key")
}
