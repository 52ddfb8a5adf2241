// Package dataset holds the three survey datasets (questionnaire schema,
// quantitative results and qualitative themes) and decodes them from CSV and
// XLSX uploads. A Store is read-only once built.
package dataset

import "strings"

// AllDisaggregation is the reserved disaggregation key for ungrouped totals.
const AllDisaggregation = "all"

// ExecutiveSummaryTheme marks the qualitative row holding the overview.
const ExecutiveSummaryTheme = "Executive Summary"

// QuestionnaireRow is one design-time survey item with every column kept
// verbatim. Column names are trimmed; lookups are exact.
type QuestionnaireRow struct {
	Cells map[string]string
}

// Get returns the trimmed cell value for column, or "" when absent.
func (r QuestionnaireRow) Get(column string) string {
	return strings.TrimSpace(r.Cells[column])
}

// Questionnaire keeps the header order alongside the rows so column
// detection can run over declared names even when every row is empty.
type Questionnaire struct {
	Columns []string
	Rows    []QuestionnaireRow
}

// ResultRow is one quantitative observation. Values stay as text.
// Groups holds every non-standard column keyed by its header, addressed by
// disaggregation key at query time.
type ResultRow struct {
	Question       string
	Disaggregation string
	AnswerOption   string
	AnswerLabel    string
	Indicator      string
	Value          string
	SampleSize     string
	StdError       string
	Groups         map[string]string
}

// Answer prefers the English label and falls back to the option tag.
func (r ResultRow) Answer() string {
	if r.AnswerLabel != "" {
		return r.AnswerLabel
	}
	return r.AnswerOption
}

// Group returns the subgroup value stored under key, if any.
func (r ResultRow) Group(key string) (string, bool) {
	v, ok := r.Groups[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// QualitativeRow is one qualitative finding. Quotes are joined by QuoteDelimiter.
type QualitativeRow struct {
	Question          string
	Theme             string
	Frequency         string
	TotalRespondents  string
	ProportionPercent string
	Summary           string
	Quotes            string
}

// QuoteDelimiter separates individual quotes inside QualitativeRow.Quotes.
const QuoteDelimiter = "---"

// Store holds the loaded datasets.
type Store struct {
	questionnaire Questionnaire
	results       []ResultRow
	qualitative   []QualitativeRow
	warnings      []string
}

// NewStore builds a store from already-decoded rows. Slices are copied.
func NewStore(q Questionnaire, results []ResultRow, qualitative []QualitativeRow) *Store {
	s := &Store{
		questionnaire: Questionnaire{
			Columns: append([]string(nil), q.Columns...),
			Rows:    append([]QuestionnaireRow(nil), q.Rows...),
		},
		results:     append([]ResultRow(nil), results...),
		qualitative: append([]QualitativeRow(nil), qualitative...),
	}
	return s
}

// Questionnaire returns the schema rows.
func (s *Store) Questionnaire() Questionnaire { return s.questionnaire }

// Results returns every quantitative row in load order.
func (s *Store) Results() []ResultRow { return s.results }

// Qualitative returns every qualitative row in load order.
func (s *Store) Qualitative() []QualitativeRow { return s.qualitative }

// Warnings lists degraded-but-valid conditions found while loading, such as
// a missing qualitative sheet.
func (s *Store) Warnings() []string { return append([]string(nil), s.warnings...) }

func (s *Store) warn(msg string) { s.warnings = append(s.warnings, msg) }

// ResultsWhere returns rows matching pred, preserving load order.
func (s *Store) ResultsWhere(pred func(ResultRow) bool) []ResultRow {
	var out []ResultRow
	for _, r := range s.results {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// QualitativeWhere returns qualitative rows matching pred, preserving load order.
func (s *Store) QualitativeWhere(pred func(QualitativeRow) bool) []QualitativeRow {
	var out []QualitativeRow
	for _, r := range s.qualitative {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// Empty reports whether the store has no questionnaire rows and no results.
func (s *Store) Empty() bool {
	return len(s.questionnaire.Rows) == 0 && len(s.results) == 0 && len(s.qualitative) == 0
}
