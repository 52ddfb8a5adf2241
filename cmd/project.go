package cmd

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/surveyloom/internal/project"
	"github.com/spf13/cobra"
)

var (
	pmProject string
	pmClear   bool
	pmStyle   string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage per-project settings",
}

// updateProject loads the -p project, applies fn and saves it.
func updateProject(fn func(p *project.Project) error) (*project.Project, error) {
	if pmProject == "" {
		return nil, fmt.Errorf("--project is required")
	}
	p, err := openProject(pmProject)
	if err != nil {
		return nil, err
	}
	if p.Config == nil {
		p.Config = &project.ProjectConfig{}
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	if err := p.Save(); err != nil {
		return nil, err
	}
	return p, nil
}

func modelArg(args []string) (string, error) {
	if pmClear {
		return "", nil
	}
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("model is required unless --clear is set")
	}
	return strings.TrimSpace(args[0]), nil
}

var projectSetModelCmd = &cobra.Command{
	Use:   "set-model <model>",
	Short: "Set or clear a project's writer model",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		model, err := modelArg(args)
		if err != nil {
			return err
		}
		if _, err := updateProject(func(p *project.Project) error {
			p.Config.Model = model
			return nil
		}); err != nil {
			return err
		}
		if pmClear {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared project model for %s\n", pmProject)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Set project model for %s: %s\n", pmProject, model)
		}
		return nil
	},
}

var projectSetSelectorModelCmd = &cobra.Command{
	Use:   "set-selector-model <model>",
	Short: "Set or clear a project's variable selector model",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		model, err := modelArg(args)
		if err != nil {
			return err
		}
		if _, err := updateProject(func(p *project.Project) error {
			p.Config.SelectorModel = model
			return nil
		}); err != nil {
			return err
		}
		if pmClear {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared project selector model for %s\n", pmProject)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Set project selector model for %s: %s\n", pmProject, model)
		}
		return nil
	},
}

var projectSetPersonaCmd = &cobra.Command{
	Use:   "set-persona <persona>",
	Short: "Set or clear a project's writing persona",
	Example: `  surveyloom project set-persona -p wave1 policy-brief
  surveyloom project set-persona -p wave1 custom --style "Short bullet points, no jargon."`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadPersonas(cfg)
		if err != nil {
			return err
		}
		var id string
		if !pmClear {
			if len(args) == 0 {
				return fmt.Errorf("persona is required unless --clear is set (available: %s)", strings.Join(reg.IDs(), ", "))
			}
			id = strings.TrimSpace(args[0])
			if _, err := reg.Resolve(id, pmStyle); err != nil {
				return err
			}
		}
		if _, err := updateProject(func(p *project.Project) error {
			p.SetPersona(id, pmStyle)
			return nil
		}); err != nil {
			return err
		}
		if pmClear {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared project persona for %s\n", pmProject)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Set project persona for %s: %s\n", pmProject, id)
		}
		return nil
	},
}

var projectSetDataCmd = &cobra.Command{
	Use:   "set-data <questionnaire> <results>",
	Short: "Point a project at its questionnaire and results files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := updateProject(func(p *project.Project) error {
			if err := p.SetDataFiles(args[0], args[1]); err != nil {
				return err
			}
			_, err := p.LoadStore()
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Data files set for %s\n  questionnaire: %s\n  results: %s\n", pmProject, p.QuestionnairePath, p.ResultsPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectCmd)
	for _, c := range []*cobra.Command{projectSetModelCmd, projectSetSelectorModelCmd, projectSetPersonaCmd, projectSetDataCmd} {
		projectCmd.AddCommand(c)
		c.Flags().StringVarP(&pmProject, "project", "p", "", "project name (\".\" for the enclosing project directory)")
	}
	for _, c := range []*cobra.Command{projectSetModelCmd, projectSetSelectorModelCmd, projectSetPersonaCmd} {
		c.Flags().BoolVar(&pmClear, "clear", false, "clear the project's override")
	}
	projectSetPersonaCmd.Flags().StringVar(&pmStyle, "style", "", "style guide text for the custom persona")
}
