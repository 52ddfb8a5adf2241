// Package catalog derives the queryable variable set and the disaggregation
// index from a loaded dataset. Both are immutable once built.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/KaramelBytes/surveyloom/internal/dataset"
)

type Kind string

const (
	Quantitative Kind = "quantitative"
	Qualitative  Kind = "qualitative"
)

// Tag is the tool-affinity marker shown to the model.
func (k Kind) Tag() string {
	if k == Qualitative {
		return "[QUALITATIVE]"
	}
	return "[QUANTITATIVE]"
}

// AnalysisTimeType is the type recorded for variables found only in results.
const AnalysisTimeType = "analysis"

// AnalysisTimeLabel is the placeholder label of analysis-time variables.
const AnalysisTimeLabel = "Derived during analysis (not in questionnaire)"

type Variable struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Label        string `json:"label"`
	Kind         Kind   `json:"kind"`
	AnalysisTime bool   `json:"analysis_time,omitempty"`
}

// Columns names the questionnaire headers used for type, name and label.
type Columns struct {
	Type  string
	Name  string
	Label string
}

// DetectColumns resolves the effective column names case-insensitively.
// The label column also matches any header containing "label::english".
// Unresolved columns fall back to the literal names.
func DetectColumns(headers []string) Columns {
	c := Columns{}
	for _, h := range headers {
		lower := strings.ToLower(strings.TrimSpace(h))
		switch {
		case lower == "type" && c.Type == "":
			c.Type = h
		case lower == "name" && c.Name == "":
			c.Name = h
		case lower == "label" && c.Label == "":
			c.Label = h
		}
	}
	if c.Label == "" {
		for _, h := range headers {
			if strings.Contains(strings.ToLower(h), "label::english") {
				c.Label = h
				break
			}
		}
	}
	if c.Type == "" {
		c.Type = "type"
	}
	if c.Name == "" {
		c.Name = "name"
	}
	if c.Label == "" {
		c.Label = "label"
	}
	return c
}

// classify maps a questionnaire type to a kind. ok is false for types that
// are neither queryable nor shown to the model.
func classify(rawType string) (Kind, bool) {
	t := strings.ToLower(strings.TrimSpace(rawType))
	norm := strings.NewReplacer("-", "_", " ", "_").Replace(t)
	switch {
	case strings.Contains(norm, "select_one"), strings.Contains(norm, "select_multiple"):
		return Quantitative, true
	case t == "integer", t == "decimal", t == "calculated":
		return Quantitative, true
	case t == "text":
		return Qualitative, true
	}
	return "", false
}

// Catalog is the set of analyzable variables. Names are unique.
type Catalog struct {
	vars     []Variable
	byName   map[string]int
	declared int
	columns  Columns
}

// Build derives the catalog from questionnaire rows and quantitative results.
// Declared variables keep questionnaire order; analysis-time variables
// follow in order of first appearance in the results.
func Build(q dataset.Questionnaire, results []dataset.ResultRow) *Catalog {
	headers := q.Columns
	if len(headers) == 0 {
		seen := map[string]bool{}
		for _, row := range q.Rows {
			for k := range row.Cells {
				if !seen[k] {
					seen[k] = true
					headers = append(headers, k)
				}
			}
		}
		sort.Strings(headers)
	}
	cols := DetectColumns(headers)
	c := &Catalog{byName: map[string]int{}, columns: cols}
	for _, row := range q.Rows {
		name := row.Get(cols.Name)
		if name == "" {
			continue
		}
		typ := row.Get(cols.Type)
		kind, ok := classify(typ)
		if !ok {
			continue
		}
		c.add(Variable{Name: name, Type: typ, Label: row.Get(cols.Label), Kind: kind})
	}
	c.declared = len(c.vars)
	for _, r := range results {
		name := strings.TrimSpace(r.Question)
		if name == "" {
			continue
		}
		c.add(Variable{Name: name, Type: AnalysisTimeType, Label: AnalysisTimeLabel, Kind: Quantitative, AnalysisTime: true})
	}
	return c
}

func (c *Catalog) add(v Variable) {
	if _, dup := c.byName[v.Name]; dup {
		return
	}
	c.byName[v.Name] = len(c.vars)
	c.vars = append(c.vars, v)
}

// Columns reports the questionnaire columns the catalog was built from.
func (c *Catalog) Columns() Columns { return c.columns }

// Variables returns a copy of all entries in catalog order.
func (c *Catalog) Variables() []Variable { return append([]Variable(nil), c.vars...) }

func (c *Catalog) Len() int { return len(c.vars) }

// DeclaredCount is the number of questionnaire-declared variables.
func (c *Catalog) DeclaredCount() int { return c.declared }

// AnalysisTimeCount is the number of variables found only in results.
func (c *Catalog) AnalysisTimeCount() int { return len(c.vars) - c.declared }

// IsValid reports whether name is a catalog variable.
func (c *Catalog) IsValid(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Lookup returns the variable named name.
func (c *Catalog) Lookup(name string) (Variable, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Variable{}, false
	}
	return c.vars[i], true
}

// Filter keeps only names present in the catalog, dropping duplicates and
// preserving input order.
func (c *Catalog) Filter(names []string) []string {
	out := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if !c.IsValid(n) || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// ContextBlock renders one line per variable for the model's context. It is
// the only description of what can be queried.
func (c *Catalog) ContextBlock() string {
	if len(c.vars) == 0 {
		return "(no analyzable variables loaded)"
	}
	var sb strings.Builder
	for _, v := range c.vars {
		fmt.Fprintf(&sb, "- %s (%s) %s: %s\n", v.Name, v.Type, v.Kind.Tag(), v.Label)
	}
	return strings.TrimRight(sb.String(), "\n")
}
