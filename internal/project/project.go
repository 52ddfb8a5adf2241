package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/KaramelBytes/surveyloom/internal/dataset"
	"github.com/KaramelBytes/surveyloom/internal/session"
	"github.com/KaramelBytes/surveyloom/internal/utils"
	"github.com/google/uuid"
)

const (
	projectFileName = utils.ProjectFileName

	RoleQuestionnaire = "questionnaire"
	RoleResults       = "results"
)

// Project represents a survey project persisted on disk: where its
// questionnaire and results live, plus per-project session defaults.
type Project struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	QuestionnairePath string         `json:"questionnaire_path"`
	ResultsPath       string         `json:"results_path"`
	Config            *ProjectConfig `json:"config"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`

	// Not serialized: on-disk location of the project.json
	rootDir string `json:"-"`
}

// ProjectConfig overrides global session defaults. Empty fields inherit.
type ProjectConfig struct {
	Model         string `json:"model,omitempty"`
	SelectorModel string `json:"selector_model,omitempty"`
	Persona       string `json:"persona,omitempty"`
	CustomStyle   string `json:"custom_style,omitempty"`
}

// NewProject constructs an in-memory project. Call Save() to persist.
func NewProject(name, description, rootDir string) *Project {
	return &Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		// Leave Config fields empty to inherit from global defaults unless explicitly set per project.
		Config:    &ProjectConfig{},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		rootDir:   rootDir,
	}
}

// LoadProject loads a project.json from the provided directory.
func LoadProject(dir string) (*Project, error) {
	path := filepath.Join(dir, projectFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("project not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read project: %w", err)
	}
	var p Project
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse project: %w", err)
	}
	if p.Config == nil {
		p.Config = &ProjectConfig{}
	}
	p.rootDir = dir
	return &p, nil
}

// RootDir returns the on-disk project directory path.
func (p *Project) RootDir() string { return p.rootDir }

// Save writes project.json using atomic write.
func (p *Project) Save() error {
	if p.rootDir == "" {
		return errors.New("project root directory not set")
	}
	if err := utils.EnsureProjectDir(p.rootDir); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	p.UpdatedAt = time.Now()
	data, err := utils.PrettyJSON(p)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(p.rootDir, projectFileName), data, 0o644)
}

// SetDataFiles records the questionnaire and results paths. Both files must
// exist; they are stored as absolute paths so the project can be opened from
// any working directory.
func (p *Project) SetDataFiles(questionnaire, results string) error {
	q, err := filepath.Abs(strings.TrimSpace(questionnaire))
	if err != nil {
		return fmt.Errorf("resolve questionnaire path: %w", err)
	}
	r, err := filepath.Abs(strings.TrimSpace(results))
	if err != nil {
		return fmt.Errorf("resolve results path: %w", err)
	}
	if _, err := statDataFile(RoleQuestionnaire, q); err != nil {
		return err
	}
	if _, err := statDataFile(RoleResults, r); err != nil {
		return err
	}
	p.QuestionnairePath = q
	p.ResultsPath = r
	p.UpdatedAt = time.Now()
	return nil
}

// HasData reports whether both data files are configured.
func (p *Project) HasData() bool {
	return p.QuestionnairePath != "" && p.ResultsPath != ""
}

// DataFiles stats the configured input files.
func (p *Project) DataFiles() ([]DataFile, error) {
	if !p.HasData() {
		return nil, fmt.Errorf("project %q has no data files; run `surveyloom init` with --questionnaire and --results", p.Name)
	}
	q, err := statDataFile(RoleQuestionnaire, p.resolve(p.QuestionnairePath))
	if err != nil {
		return nil, err
	}
	r, err := statDataFile(RoleResults, p.resolve(p.ResultsPath))
	if err != nil {
		return nil, err
	}
	return []DataFile{q, r}, nil
}

// LoadStore decodes the questionnaire and results into a fresh store.
func (p *Project) LoadStore() (*dataset.Store, error) {
	if !p.HasData() {
		return nil, fmt.Errorf("project %q has no data files", p.Name)
	}
	store, err := dataset.LoadFiles(p.resolve(p.QuestionnairePath), p.resolve(p.ResultsPath))
	if err != nil {
		return nil, fmt.Errorf("load project data: %w", err)
	}
	return store, nil
}

// WatchFiles returns the absolute data paths for file watching.
func (p *Project) WatchFiles() []string {
	if !p.HasData() {
		return nil
	}
	return []string{p.resolve(p.QuestionnairePath), p.resolve(p.ResultsPath)}
}

// resolve interprets relative paths (hand-edited project.json) against the project root.
func (p *Project) resolve(path string) string {
	if filepath.IsAbs(path) || p.rootDir == "" {
		return path
	}
	return filepath.Join(p.rootDir, path)
}

// SessionConfig overlays the project's overrides on the given defaults.
func (p *Project) SessionConfig(defaults session.Config) session.Config {
	cfg := defaults
	if p.Config == nil {
		return cfg
	}
	if p.Config.Model != "" {
		cfg = cfg.WithModel(p.Config.Model)
	}
	if p.Config.SelectorModel != "" {
		cfg = cfg.WithSelectorModel(p.Config.SelectorModel)
	}
	if p.Config.Persona != "" {
		cfg = cfg.WithPersona(p.Config.Persona, p.Config.CustomStyle)
	}
	return cfg
}

// SetPersona stores a persona override; the guide is only kept for custom.
func (p *Project) SetPersona(id, guide string) {
	if p.Config == nil {
		p.Config = &ProjectConfig{}
	}
	cfg := session.Config{}.WithPersona(id, guide)
	p.Config.Persona = cfg.Persona
	p.Config.CustomStyle = cfg.CustomStyle
	p.UpdatedAt = time.Now()
}
