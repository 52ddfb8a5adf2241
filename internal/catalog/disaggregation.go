package catalog

import (
	"sort"
	"strings"

	"github.com/KaramelBytes/surveyloom/internal/dataset"
)

// DisaggregationIndex is the sorted set of distinct disaggregation keys.
type DisaggregationIndex struct {
	values []string
	set    map[string]bool
}

// BuildDisaggregations collects trimmed, de-duplicated disaggregation values
// in ascending lexicographic order. Blank values are skipped.
func BuildDisaggregations(results []dataset.ResultRow) *DisaggregationIndex {
	idx := &DisaggregationIndex{set: map[string]bool{}}
	for _, r := range results {
		v := strings.TrimSpace(r.Disaggregation)
		if v == "" || idx.set[v] {
			continue
		}
		idx.set[v] = true
		idx.values = append(idx.values, v)
	}
	sort.Strings(idx.values)
	return idx
}

// Values returns a copy of the sorted keys, suitable for a tool enum.
func (d *DisaggregationIndex) Values() []string { return append([]string(nil), d.values...) }

func (d *DisaggregationIndex) Len() int { return len(d.values) }

func (d *DisaggregationIndex) Contains(v string) bool { return d.set[v] }

// HasAll reports whether the ungrouped total key is present.
func (d *DisaggregationIndex) HasAll() bool { return d.set[dataset.AllDisaggregation] }

// PromptText renders the keys for the model, quoting each value.
func (d *DisaggregationIndex) PromptText() string {
	if len(d.values) == 0 {
		return "(none: disaggregated queries are unavailable)"
	}
	quoted := make([]string, len(d.values))
	for i, v := range d.values {
		quoted[i] = `"` + v + `"`
	}
	return strings.Join(quoted, ", ")
}
