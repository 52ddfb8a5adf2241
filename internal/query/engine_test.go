package query

import (
	"testing"

	"github.com/KaramelBytes/surveyloom/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioStore() *dataset.Store {
	q := dataset.Questionnaire{
		Columns: []string{"name", "type", "label"},
		Rows: []dataset.QuestionnaireRow{{Cells: map[string]string{
			"name": "electricity_outages", "type": "select_one", "label": "Had power outages?",
		}}},
	}
	results := []dataset.ResultRow{
		{Question: "electricity_outages", Disaggregation: "all", AnswerOption: "yes", Value: "63", SampleSize: "450", Indicator: "percent"},
		{Question: "electricity_outages", Disaggregation: "gender", AnswerOption: "yes", Value: "19", SampleSize: "120"},
		{Question: "electricity_outages", Disaggregation: "region", AnswerOption: "yes", Value: "7", SampleSize: "40", Groups: map[string]string{"region": "North"}},
		{Question: "other", Disaggregation: "all", Value: "1", SampleSize: "10"},
	}
	qual := []dataset.QualitativeRow{
		{Question: "trust_in_banks", Theme: "Executive Summary", Summary: "Low trust overall"},
		{Question: "trust_in_banks", Theme: "Collateral", Frequency: "9", ProportionPercent: "0.45", Summary: "Banks demand collateral", Quotes: "q1\n---\nq2"},
		{Question: "reasons", Theme: "Cost", ProportionPercent: "", Quotes: " a ---  --- b "},
	}
	return dataset.NewStore(q, results, qual)
}

func TestQuantitativeAll(t *testing.T) {
	e := NewEngine(scenarioStore())
	rows := e.Quantitative("electricity_outages", "all")
	require.Len(t, rows, 1)
	assert.Equal(t, QuantRow{Answer: "yes", Value: "63", Unit: "percent", SampleSize: "450", Group: "all"}, rows[0])
}

func TestQuantitativeDisaggregated(t *testing.T) {
	e := NewEngine(scenarioStore())
	rows := e.Quantitative("electricity_outages", "gender")
	require.Len(t, rows, 1)
	assert.Equal(t, "19", rows[0].Value)
	assert.Equal(t, "120", rows[0].SampleSize)
	assert.Equal(t, "gender", rows[0].Group)

	rows = e.Quantitative("electricity_outages", "region")
	require.Len(t, rows, 1)
	assert.Equal(t, "North", rows[0].Group, "subgroup column value is used when present")
}

func TestQuantitativeNoMatchIsEmpty(t *testing.T) {
	e := NewEngine(scenarioStore())
	rows := e.Quantitative("electricity_outages", "age")
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
	assert.Empty(t, e.Quantitative("electricity_outages", " all"), "no normalization at query time")
}

func TestQualitativeScenario(t *testing.T) {
	e := NewEngine(scenarioStore())
	res := e.Qualitative("trust_in_banks")
	require.True(t, res.Found)
	assert.Equal(t, "Low trust overall", res.Overview)
	require.Len(t, res.Themes, 1)
	th := res.Themes[0]
	assert.Equal(t, "Collateral", th.Theme)
	assert.Equal(t, "45.0%", th.Prevalence)
	assert.Equal(t, "9", th.Count)
	assert.Equal(t, []string{"q1", "q2"}, th.Quotes)
}

func TestQualitativeWithoutSummaryUsesPlaceholder(t *testing.T) {
	e := NewEngine(scenarioStore())
	res := e.Qualitative("reasons")
	require.True(t, res.Found)
	assert.Equal(t, OverviewPlaceholder, res.Overview)
	require.Len(t, res.Themes, 1)
	assert.Equal(t, "N/A", res.Themes[0].Prevalence)
	assert.Equal(t, []string{"a", "b"}, res.Themes[0].Quotes)
}

func TestQualitativeNotFound(t *testing.T) {
	res := NewEngine(scenarioStore()).Qualitative("electricity_outages")
	assert.False(t, res.Found)
	assert.Equal(t, NotFoundMessage, res.Message)
}

func TestQueriesAreRepeatable(t *testing.T) {
	e := NewEngine(scenarioStore())
	assert.Equal(t, e.Quantitative("electricity_outages", "all"), e.Quantitative("electricity_outages", "all"))
	assert.Equal(t, e.Qualitative("trust_in_banks"), e.Qualitative("trust_in_banks"))
}

func TestPrevalence(t *testing.T) {
	assert.Equal(t, "45.0%", Prevalence("0.45"))
	assert.Equal(t, "12.3%", Prevalence("0.1234"))
	assert.Equal(t, "100.0%", Prevalence("1"))
	assert.Equal(t, "N/A", Prevalence(""))
	assert.Equal(t, "N/A", Prevalence("n/a"))
}

func TestSampleSizes(t *testing.T) {
	assert.Equal(t, 570, SampleSizes([]QuantRow{{SampleSize: "450"}, {SampleSize: "120"}, {SampleSize: "x"}}))
}
