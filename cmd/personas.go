package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var personasJSON bool

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List the writing personas available to chat sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadPersonas(cfg)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if personasJSON {
			return writeJSON(out, reg.List())
		}
		t := newTable(out)
		t.AppendHeader(table.Row{"ID", "Title", "Role"})
		t.SetColumnConfigs([]table.ColumnConfig{{Number: 3, WidthMax: 70}})
		for _, p := range reg.List() {
			t.AppendRow(table.Row{p.ID, p.Title, p.Role})
		}
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(personasCmd)
	personasCmd.Flags().BoolVar(&personasJSON, "json", false, "print personas as JSON")
}
