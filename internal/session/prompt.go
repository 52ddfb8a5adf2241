package session

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/surveyloom/internal/agent"
	"github.com/KaramelBytes/surveyloom/internal/catalog"
	"github.com/KaramelBytes/surveyloom/internal/persona"
)

const draftingNotes = `## Drafting notes
- Ground every figure in a query result from this conversation. Never invent numbers.
- Cite the sample size next to each percentage or value you report.
- If a query returns no rows, say the data is unavailable rather than guessing.
- Respond in Markdown.`

// BuildSystemPrompt assembles the writer's system prompt from the persona,
// the tool rules, the variable context and the disaggregation keys.
func BuildSystemPrompt(p persona.Persona, cat *catalog.Catalog, idx *catalog.DisaggregationIndex) string {
	var b strings.Builder
	b.WriteString(p.Role)
	b.WriteString(" You answer questions about a survey using only the data returned by your tools.\n\n")

	b.WriteString("## Tools\n")
	fmt.Fprintf(&b, "- `%s`: results for a variable tagged [QUANTITATIVE]. Pass the exact variable name and a disaggregation; use \"all\" for the overall figure.\n", agent.ToolQuantitative)
	fmt.Fprintf(&b, "- `%s`: themes, prevalence and quotes for a variable tagged [QUALITATIVE].\n", agent.ToolQualitative)
	b.WriteString("- Call the tool that matches the variable's tag. You may call several tools in one round.\n")
	b.WriteString("- Query before you answer. Prefer the variables named in the user's message.\n\n")

	b.WriteString("## Variables\n")
	if cat != nil {
		b.WriteString(cat.ContextBlock())
	}
	b.WriteString("\n\n## Disaggregations\n")
	if idx != nil {
		b.WriteString(idx.PromptText())
	}
	b.WriteString("\n\n## Style\n")
	b.WriteString(strings.TrimSpace(p.StyleGuide))
	b.WriteString("\n\n")
	b.WriteString(draftingNotes)
	return b.String()
}
