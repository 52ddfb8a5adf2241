package cmd

import (
	"fmt"
	"os"

	"github.com/KaramelBytes/surveyloom/internal/catalog"
	"github.com/KaramelBytes/surveyloom/internal/dataset"
	"github.com/KaramelBytes/surveyloom/internal/project"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	catProject string
	catDisagg  bool
	catJSON    bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show the variables and disaggregations of a project's data",
	Example: `  surveyloom catalog -p wave1
  surveyloom catalog -p wave1 --disaggregations`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadProjectStore(catProject)
		if err != nil {
			return err
		}
		cat := catalog.Build(store.Questionnaire(), store.Results())
		idx := catalog.BuildDisaggregations(store.Results())
		out := cmd.OutOrStdout()

		if catDisagg {
			if catJSON {
				return writeJSON(out, idx.Values())
			}
			if idx.Len() == 0 {
				fmt.Fprintln(out, "(no disaggregations)")
				return nil
			}
			for _, v := range idx.Values() {
				fmt.Fprintf(out, "- %s\n", v)
			}
			if !idx.HasAll() {
				fmt.Fprintf(os.Stderr, "⚠ Warning: no %q disaggregation; overall figures are unavailable\n", dataset.AllDisaggregation)
			}
			return nil
		}

		if catJSON {
			return writeJSON(out, cat.Variables())
		}
		t := newTable(out)
		t.AppendHeader(table.Row{"Variable", "Type", "Tool", "Label"})
		t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: 60}})
		for _, v := range cat.Variables() {
			t.AppendRow(table.Row{v.Name, v.Type, v.Kind.Tag(), v.Label})
		}
		t.AppendFooter(table.Row{fmt.Sprintf("%d variables", cat.Len()), "", fmt.Sprintf("%d declared", cat.DeclaredCount()), fmt.Sprintf("%d analysis-time", cat.AnalysisTimeCount())})
		t.Render()
		return nil
	},
}

// loadProjectStore opens a project and decodes its data, surfacing load
// warnings on stderr.
func loadProjectStore(name string) (*dataset.Store, error) {
	if name == "" {
		return nil, fmt.Errorf("--project is required")
	}
	p, err := openProject(name)
	if err != nil {
		return nil, err
	}
	return projectStore(p)
}

func projectStore(p *project.Project) (*dataset.Store, error) {
	store, err := p.LoadStore()
	if err != nil {
		return nil, err
	}
	for _, w := range store.Warnings() {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %s\n", w)
	}
	return store, nil
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().StringVarP(&catProject, "project", "p", "", "project name")
	catalogCmd.Flags().BoolVar(&catDisagg, "disaggregations", false, "list disaggregation keys instead of variables")
	catalogCmd.Flags().BoolVar(&catJSON, "json", false, "print as JSON")
}
