package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/KaramelBytes/surveyloom/internal/project"
	"github.com/KaramelBytes/surveyloom/internal/utils"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	listFiles    bool
	listProjName string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects, or a project's data files",
	Example: `  surveyloom list
  surveyloom list --files -p wave1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !listFiles {
			return listAllProjects(out)
		}
		if listProjName == "" {
			return fmt.Errorf("--project is required when using --files")
		}
		p, err := openProject(listProjName)
		if err != nil {
			return err
		}
		files, err := p.DataFiles()
		if err != nil {
			return err
		}
		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Role", "File", "Size", "Modified"})
		for _, f := range files {
			t.AppendRow(table.Row{f.Role, f.Path, f.Size, f.ModifiedAt.Format("2006-01-02 15:04")})
		}
		t.Render()
		return nil
	},
}

func listAllProjects(out io.Writer) error {
	root, err := defaultProjectsDir()
	if err != nil {
		return err
	}
	dirs, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Project", "Description", "Data", "Persona", "Model"})
	found := 0
	for _, e := range dirs {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, utils.ProjectFileName)); err != nil {
			continue
		}
		p, err := project.LoadProject(dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠ Warning: %s: %v\n", e.Name(), err)
			continue
		}
		data := "no"
		if p.HasData() {
			data = "yes"
		}
		t.AppendRow(table.Row{p.Name, p.Description, data, p.Config.Persona, p.Config.Model})
		found++
	}
	if found == 0 {
		fmt.Fprintln(out, "(no projects)")
		return nil
	}
	t.Render()
	return nil
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listFiles, "files", false, "list a project's data files")
	listCmd.Flags().StringVarP(&listProjName, "project", "p", "", "project name for --files")
}
