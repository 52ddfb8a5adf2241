package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/surveyloom/internal/project"
	"github.com/KaramelBytes/surveyloom/internal/utils"
	"github.com/spf13/cobra"
)

var (
	initDescription   string
	initQuestionnaire string
	initResults       string
)

var initCmd = &cobra.Command{
	Use:   "init <project-name>",
	Short: "Initialize a new survey project",
	Example: `  surveyloom init wave1 --questionnaire survey.csv --results results.xlsx
  surveyloom init wave1 -d "Baseline household survey"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("invalid project name %q", name)
		}
		root, err := defaultProjectsDir()
		if err != nil {
			return err
		}
		projDir := filepath.Join(root, name)
		// Refuse to overwrite an existing project.
		if info, err := os.Stat(projDir); err == nil && info.IsDir() {
			projectFile := filepath.Join(projDir, utils.ProjectFileName)
			if _, err := os.Stat(projectFile); err == nil {
				return fmt.Errorf("project already exists at %s", projDir)
			}
			entries, err := os.ReadDir(projDir)
			if err != nil {
				return fmt.Errorf("inspect project directory: %w", err)
			}
			if len(entries) > 0 {
				return fmt.Errorf("directory %s already exists and is not empty; refusing to initialize project", projDir)
			}
		} else if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("stat project directory: %w", err)
		}

		p := project.NewProject(name, initDescription, projDir)
		if initQuestionnaire != "" || initResults != "" {
			if initQuestionnaire == "" || initResults == "" {
				return fmt.Errorf("--questionnaire and --results must be given together")
			}
			if err := p.SetDataFiles(initQuestionnaire, initResults); err != nil {
				return err
			}
			// Decode once so a malformed file fails here rather than mid-chat.
			store, err := p.LoadStore()
			if err != nil {
				return err
			}
			for _, w := range store.Warnings() {
				fmt.Fprintf(os.Stderr, "⚠ Warning: %s\n", w)
			}
		}
		if err := utils.EnsureProjectDir(projDir); err != nil {
			return err
		}
		if err := p.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Project initialized: %s\n", projDir)
		if !p.HasData() {
			fmt.Fprintf(cmd.OutOrStdout(), "  Attach data with: surveyloom project set-data -p %s <questionnaire> <results>\n", name)
		}
		return nil
	},
}

func defaultProjectsDir() (string, error) {
	if cfg != nil && cfg.ProjectsDir != "" {
		dir := cfg.ProjectsDir
		if strings.HasPrefix(dir, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("resolve home dir: %w", err)
			}
			dir = strings.TrimPrefix(dir, "~")
			dir = strings.TrimPrefix(dir, string(os.PathSeparator))
			dir = strings.TrimPrefix(dir, "/")
			dir = filepath.Join(home, dir)
		}
		dir = filepath.Clean(dir)
		if err := utils.EnsureProjectDir(dir); err != nil {
			return "", err
		}
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	dir := filepath.Join(home, ".surveyloom", "projects")
	if err := utils.EnsureProjectDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

func resolveProjectDirByName(name string) (string, error) {
	if name == "" {
		return "", errors.New("project name is required")
	}
	root, err := defaultProjectsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, name), nil
}

// openProject loads a project by name, or from the enclosing directory of
// the working directory when name is ".".
func openProject(name string) (*project.Project, error) {
	if name == "." {
		dir, err := utils.FindProjectRoot("")
		if err != nil {
			return nil, err
		}
		return project.LoadProject(dir)
	}
	dir, err := resolveProjectDirByName(name)
	if err != nil {
		return nil, err
	}
	return project.LoadProject(dir)
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initDescription, "desc", "d", "", "project description")
	initCmd.Flags().StringVar(&initQuestionnaire, "questionnaire", "", "questionnaire file (CSV/TSV)")
	initCmd.Flags().StringVar(&initResults, "results", "", "results file (XLSX or CSV)")
}
