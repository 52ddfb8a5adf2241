// Package persona defines the writing styles the report writer can adopt.
// A persona contributes the role sentence at the top of the system prompt
// and a style guide appended after the variable context.
package persona

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Built-in persona ids.
const (
	Economist     = "economist"
	PolicyBrief   = "policy-brief"
	FactExtractor = "fact-extractor"
	Custom        = "custom"
)

// Default is the persona used when none is configured.
const Default = Economist

type Persona struct {
	ID         string `yaml:"id" json:"id" validate:"required"`
	Title      string `yaml:"title" json:"title" validate:"required"`
	Role       string `yaml:"role" json:"role" validate:"required"`
	StyleGuide string `yaml:"style_guide" json:"style_guide"`
}

const customRole = "You are a survey data analyst who writes exactly in the style the user describes below."

var builtins = []Persona{
	{
		ID:    Economist,
		Title: "Diagnostic economist",
		Role:  "You are a development economist writing a long-form diagnostic analysis of household survey results.",
		StyleGuide: `Write a narrative report in flowing paragraphs.
- Open with the headline finding and its magnitude.
- Explain plausible economic mechanisms behind the numbers and flag where the data cannot distinguish between them.
- Compare subgroups when disaggregated results were retrieved and say whether gaps look material given the sample sizes.
- Weave in respondent quotes where they illuminate a mechanism.
- Close with implications and the open questions the data raises.`,
	},
	{
		ID:    PolicyBrief,
		Title: "Policy brief",
		Role:  "You are a policy advisor preparing a concise briefing note for decision makers.",
		StyleGuide: `Structure every answer in three labelled sections: Problem, Evidence, Recommendation.
- Problem: one or two sentences.
- Evidence: short bullets, each with a figure and its sample size.
- Recommendation: at most three actionable bullets grounded in the evidence.
Keep the whole answer under 300 words.`,
	},
	{
		ID:    FactExtractor,
		Title: "Fact extractor",
		Role:  "You are a neutral research assistant who reports survey facts without interpretation.",
		StyleGuide: `Report only what the retrieved data states.
- Use bullet points, one fact per bullet, each with its value, unit and sample size.
- Quote themes and prevalence verbatim from qualitative results.
- Do not speculate about causes or make recommendations.
- If the data does not answer the question, say so plainly.`,
	},
}

// Builtins returns the shipped personas (custom excluded).
func Builtins() []Persona {
	return append([]Persona(nil), builtins...)
}

// Registry resolves persona ids. The zero value is not usable; call
// NewRegistry.
type Registry struct {
	list []Persona
	byID map[string]Persona
}

// NewRegistry returns the built-ins plus extra. Extra personas may not reuse
// a built-in id or "custom".
func NewRegistry(extra ...Persona) (*Registry, error) {
	r := &Registry{byID: map[string]Persona{}}
	for _, p := range builtins {
		r.add(p)
	}
	v := validator.New()
	for _, p := range extra {
		p.ID = strings.TrimSpace(p.ID)
		if err := v.Struct(p); err != nil {
			return nil, fmt.Errorf("persona %q: %w", p.ID, err)
		}
		if strings.ContainsAny(p.ID, " \t") {
			return nil, fmt.Errorf("persona id %q must not contain whitespace", p.ID)
		}
		if p.ID == Custom {
			return nil, fmt.Errorf("persona id %q is reserved", p.ID)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("persona %q is already defined", p.ID)
		}
		r.add(p)
	}
	return r, nil
}

func (r *Registry) add(p Persona) {
	r.byID[p.ID] = p
	r.list = append(r.list, p)
}

// List returns all personas in registration order, followed by the custom
// variant.
func (r *Registry) List() []Persona {
	out := append([]Persona(nil), r.list...)
	return append(out, Persona{ID: Custom, Title: "Custom style", Role: customRole})
}

// IDs returns every selectable id, custom included, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.list)+1)
	for _, p := range r.list {
		ids = append(ids, p.ID)
	}
	ids = append(ids, Custom)
	sort.Strings(ids)
	return ids
}

// Known reports whether id is selectable.
func (r *Registry) Known(id string) bool {
	if id == Custom {
		return true
	}
	_, ok := r.byID[id]
	return ok
}

// Resolve returns the persona for id. For custom, the user's guide is used
// verbatim and must not be blank.
func (r *Registry) Resolve(id, customGuide string) (Persona, error) {
	if id == "" {
		id = Default
	}
	if id == Custom {
		guide := strings.TrimSpace(customGuide)
		if guide == "" {
			return Persona{}, fmt.Errorf("custom persona requires a style guide")
		}
		return Persona{ID: Custom, Title: "Custom style", Role: customRole, StyleGuide: guide}, nil
	}
	p, ok := r.byID[id]
	if !ok {
		return Persona{}, fmt.Errorf("unknown persona %q (available: %s)", id, strings.Join(r.IDs(), ", "))
	}
	return p, nil
}

type personaFile struct {
	Personas []Persona `yaml:"personas"`
}

// LoadFile reads additional personas from a YAML file of the form
// personas: [{id, title, role, style_guide}].
func LoadFile(path string) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personas: %w", err)
	}
	var pf personaFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse personas %s: %w", path, err)
	}
	return pf.Personas, nil
}
