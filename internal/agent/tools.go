package agent

import (
	"github.com/KaramelBytes/surveyloom/internal/ai"
	"github.com/KaramelBytes/surveyloom/internal/catalog"
)

// Tool names declared to the writer model.
const (
	ToolQuantitative = "quantitative-query"
	ToolQualitative  = "qualitative-query"
)

// QueryKind tags an executed query for display.
type QueryKind string

const (
	KindQuantitative QueryKind = "Quantitative"
	KindQualitative  QueryKind = "Qualitative"
)

type quantitativeArgs struct {
	QuestionName   string `json:"question_name" validate:"required"`
	Disaggregation string `json:"disaggregation" validate:"required"`
}

type qualitativeArgs struct {
	QuestionName string `json:"question_name" validate:"required"`
}

// BuildTools declares both query tools. The quantitative disaggregation
// parameter is restricted to the index values; an empty index leaves it
// without choices.
func BuildTools(idx *catalog.DisaggregationIndex) []ai.Tool {
	var enum []string
	if idx != nil {
		enum = idx.Values()
	}
	quant := ai.NewFunctionTool(ToolQuantitative,
		"Look up quantitative survey results for one variable, optionally broken down by a disaggregation. Returns answer options with value, unit, sample size and group.",
		ai.ToolParameters{
			Type: "object",
			Properties: map[string]ai.ToolParamDef{
				"question_name": {
					Type:        "string",
					Description: "Exact variable name tagged [QUANTITATIVE] in the variable list.",
				},
				"disaggregation": {
					Type:        "string",
					Description: `Breakdown to use; "all" is the ungrouped total.`,
					Enum:        enum,
				},
			},
			Required: []string{"question_name", "disaggregation"},
		})
	qual := ai.NewFunctionTool(ToolQualitative,
		"Look up the qualitative analysis of one open-ended variable. Returns an overview plus themes with prevalence, counts, insights and quotes.",
		ai.ToolParameters{
			Type: "object",
			Properties: map[string]ai.ToolParamDef{
				"question_name": {
					Type:        "string",
					Description: "Exact variable name tagged [QUALITATIVE] in the variable list.",
				},
			},
			Required: []string{"question_name"},
		})
	return []ai.Tool{quant, qual}
}
