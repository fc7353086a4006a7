package synth

import (
	"fmt"
	"strings"

	"github.com/tabloom/tabloom/internal/outline"
	"github.com/tabloom/tabloom/internal/plan"
	"github.com/tabloom/tabloom/internal/report"
)

// System prompts are fixed per input mode. All three demand the same JSON
// envelope and the same grounding rule: numbers come from the citation list
// or not at all.
const (
	promptEnvelope = `Reply with a JSON object {"title","summary","html","insights","recommendations"}. ` +
		`"html" is the report body; reference a chart only with <div class="chart" data-chart-id="..."></div> ` +
		`using the provided candidate ids. "insights" and "recommendations" are arrays of short bullet strings. No prose outside the JSON.`

	systemImport = `You write narrative data reports. Every number you state must be copied from the ` +
		`[CITATIONS] list exactly as written, including its unit. Never compute, extrapolate or invent figures. ` +
		`Never describe a period with no recorded data as a drop to zero. ` + promptEnvelope

	systemGenerate = `You write narrative business reports from a short idea. Prefer qualitative statements; ` +
		`if the [CITATIONS] list is empty, state no figures at all. ` + promptEnvelope

	systemPaste = `You write narrative reports that restructure pasted source text. Quote numbers only if they ` +
		`appear in the [CITATIONS] list or the source text verbatim. ` + promptEnvelope
)

func systemPrompt(mode Mode) string {
	switch mode {
	case ModeImport:
		return systemImport
	case ModePaste:
		return systemPaste
	default:
		return systemGenerate
	}
}

// userPrompt assembles the narrative call input: the outline, then either the
// intent-filtered content plan or the raw citation list plus summary. Chart
// candidates are listed id/title/type only — the model never sees datapoints
// it could misquote into prose.
func userPrompt(req Request, ol outline.Outline, analysis *report.AnalysisResult, contentPlan *plan.ContentPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[OUTLINE]\n%s\n\n", ol.JSON())

	if contentPlan != nil {
		b.WriteString(contentPlan.PromptText())
		b.WriteString("\n")
	} else {
		if analysis.Summary != "" {
			fmt.Fprintf(&b, "[SUMMARY]\n%s\n\n", analysis.Summary)
		}
		rendered := analysis.Citations.Rendered()
		b.WriteString("[CITATIONS]\n")
		if len(rendered) == 0 {
			b.WriteString("(none)\n")
		}
		for _, c := range rendered {
			b.WriteString("- ")
			b.WriteString(c)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(analysis.Candidates) > 0 {
		b.WriteString("[CHART CANDIDATES]\n")
		for _, c := range analysis.Candidates {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", c.ID, c.Title, c.Type)
		}
		b.WriteString("\n")
	}

	if req.Mode == ModePaste {
		fmt.Fprintf(&b, "[SOURCE TEXT]\n%s\n\n", req.Text)
	}

	b.WriteString("[TASK]\nWrite the report following the outline.")
	if req.Intent != "" && contentPlan == nil {
		fmt.Fprintf(&b, " The reader's goal: %s.", req.Intent)
	}
	return b.String()
}
