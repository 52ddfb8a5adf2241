// Package query runs the two read-only lookups the model may request:
// quantitative results by question and disaggregation, and qualitative
// themes by question.
package query

import (
	"strconv"
	"strings"

	"github.com/KaramelBytes/surveyloom/internal/dataset"
)

// OverviewPlaceholder is returned when a question has themes but no
// executive summary row.
const OverviewPlaceholder = "No executive summary available."

// NotFoundMessage is the payload message for questions without qualitative rows.
const NotFoundMessage = "No qualitative analysis found for this question."

// QuantRow is one quantitative result as returned to the model.
type QuantRow struct {
	Answer     string `json:"answer"`
	Value      string `json:"value"`
	Unit       string `json:"unit"`
	SampleSize string `json:"sample_size"`
	Group      string `json:"group"`
}

// Theme is one qualitative theme entry.
type Theme struct {
	Theme      string   `json:"theme"`
	Prevalence string   `json:"prevalence"`
	Count      string   `json:"count"`
	Insight    string   `json:"insight"`
	Quotes     []string `json:"quotes"`
}

// QualResult is the qualitative lookup outcome. Found is false for the
// "no analysis found" sentinel.
type QualResult struct {
	Question string  `json:"question"`
	Found    bool    `json:"found"`
	Message  string  `json:"message,omitempty"`
	Overview string  `json:"overview,omitempty"`
	Themes   []Theme `json:"themes,omitempty"`
}

// Engine executes queries against a store. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	store *dataset.Store
}

func NewEngine(store *dataset.Store) *Engine {
	return &Engine{store: store}
}

// Quantitative returns every result row whose question and disaggregation
// equal the arguments exactly, in load order. No match yields an empty,
// non-nil slice.
func (e *Engine) Quantitative(question, disaggregation string) []QuantRow {
	out := []QuantRow{}
	for _, r := range e.store.ResultsWhere(func(r dataset.ResultRow) bool {
		return r.Question == question && r.Disaggregation == disaggregation
	}) {
		out = append(out, QuantRow{
			Answer:     r.Answer(),
			Value:      r.Value,
			Unit:       r.Indicator,
			SampleSize: r.SampleSize,
			Group:      groupFor(r, disaggregation),
		})
	}
	return out
}

// groupFor labels a row with its subgroup. Ungrouped totals are always
// "all"; otherwise the row's own value for the disaggregation column is used
// when present, falling back to the disaggregation key.
func groupFor(r dataset.ResultRow, disaggregation string) string {
	if disaggregation == dataset.AllDisaggregation {
		return dataset.AllDisaggregation
	}
	if v, ok := r.Group(disaggregation); ok {
		return v
	}
	return disaggregation
}

// Qualitative returns the overview and themes recorded for question.
func (e *Engine) Qualitative(question string) QualResult {
	rows := e.store.QualitativeWhere(func(r dataset.QualitativeRow) bool { return r.Question == question })
	if len(rows) == 0 {
		return QualResult{Question: question, Found: false, Message: NotFoundMessage}
	}
	res := QualResult{Question: question, Found: true, Overview: OverviewPlaceholder, Themes: []Theme{}}
	overviewSet := false
	for _, r := range rows {
		if r.Theme == dataset.ExecutiveSummaryTheme {
			if !overviewSet {
				res.Overview = r.Summary
				overviewSet = true
			}
			continue
		}
		res.Themes = append(res.Themes, Theme{
			Theme:      r.Theme,
			Prevalence: Prevalence(r.ProportionPercent),
			Count:      r.Frequency,
			Insight:    r.Summary,
			Quotes:     SplitQuotes(r.Quotes),
		})
	}
	return res
}

// Prevalence formats a 0..1 proportion as a percentage with one decimal,
// or "N/A" when missing or unparseable.
func Prevalence(proportion string) string {
	p := strings.TrimSpace(proportion)
	if p == "" {
		return "N/A"
	}
	f, err := strconv.ParseFloat(p, 64)
	if err != nil {
		return "N/A"
	}
	return strconv.FormatFloat(f*100, 'f', 1, 64) + "%"
}

// SplitQuotes splits on the quote delimiter, trimming entries and dropping blanks.
func SplitQuotes(s string) []string {
	out := []string{}
	for _, q := range strings.Split(s, dataset.QuoteDelimiter) {
		q = strings.TrimSpace(q)
		if q != "" {
			out = append(out, q)
		}
	}
	return out
}

// SampleSizes sums numeric sample sizes of rows, ignoring unparseable ones.
func SampleSizes(rows []QuantRow) int {
	total := 0
	for _, r := range rows {
		if n, err := strconv.Atoi(strings.TrimSpace(r.SampleSize)); err == nil {
			total += n
		}
	}
	return total
}
