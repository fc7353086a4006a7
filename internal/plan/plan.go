// Package plan filters the citation list and chart candidates down to what is
// relevant to a user-supplied intent. The planner is advisory: its chart
// references are capped to known ids here, but numeric compliance is enforced
// later by the quality gate, and any failure degrades to single-phase
// synthesis instead of aborting the request.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tabloom/tabloom/internal/ai"
	"github.com/tabloom/tabloom/internal/chart"
	"github.com/tabloom/tabloom/internal/outline"
	"github.com/tabloom/tabloom/internal/report"
	"github.com/tabloom/tabloom/internal/utils"
)

// ContentPlan is the intent-filtered projection used by synthesis. Exists
// only when an intent string was supplied; never persisted.
type ContentPlan struct {
	Summary         string              `json:"summary"`
	Metrics         []report.MetricItem `json:"metrics"`
	ChartIDs        []string            `json:"chartIds"`
	Insights        []string            `json:"insights"`
	Recommendations []string            `json:"recommendations"`
}

// Build calls the model once to project citations and chart candidates onto
// the user's intent. Chart ids outside the candidate set are dropped. A
// malformed response returns an error the orchestrator degrades on.
func Build(ctx context.Context, gen ai.GenerateFunc, model, intent string, o outline.Outline, citations []string, candidates []chart.Candidate) (*ContentPlan, error) {
	system := "You select report content for a stated goal. " +
		"Metric values must be copied verbatim from the provided citation list; never invent numbers. " +
		"Reply with a JSON object {summary, metrics:[{label,value}], chartIds, insights, recommendations}. No prose."

	var b strings.Builder
	fmt.Fprintf(&b, "[GOAL]\n%s\n\n", intent)
	fmt.Fprintf(&b, "[OUTLINE]\n%s\n\n", o.JSON())
	b.WriteString("[CITATIONS]\n")
	for _, c := range citations {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	// candidates are summarized id/title/type only; the model never sees
	// datapoints it could misquote into prose
	b.WriteString("\n[CHART CANDIDATES]\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", c.ID, c.Title, c.Type)
	}

	raw, err := gen(ctx, system, b.String(), model)
	if err != nil {
		return nil, fmt.Errorf("content plan: %w", err)
	}
	var p ContentPlan
	if err := json.Unmarshal([]byte(utils.StripCodeFences(raw)), &p); err != nil {
		return nil, fmt.Errorf("content plan: unparseable response: %w", err)
	}
	if p.Summary == "" && len(p.Metrics) == 0 && len(p.Insights) == 0 {
		return nil, fmt.Errorf("content plan: response missing expected keys")
	}

	known := chart.ByID(candidates)
	kept := p.ChartIDs[:0]
	for _, id := range p.ChartIDs {
		if _, ok := known[id]; ok {
			kept = append(kept, id)
		}
	}
	p.ChartIDs = kept
	return &p, nil
}

// PromptText renders the plan for the narrative prompt.
func (p *ContentPlan) PromptText() string {
	var b strings.Builder
	b.WriteString("[CONTENT PLAN]\n")
	if p.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", p.Summary)
	}
	if len(p.Metrics) > 0 {
		b.WriteString("Metrics:\n")
		for _, m := range p.Metrics {
			fmt.Fprintf(&b, "- %s: %s\n", m.Label, m.Value)
		}
	}
	if len(p.ChartIDs) > 0 {
		fmt.Fprintf(&b, "Charts to reference: %s\n", strings.Join(p.ChartIDs, ", "))
	}
	if len(p.Insights) > 0 {
		b.WriteString("Insights:\n")
		for _, s := range p.Insights {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	if len(p.Recommendations) > 0 {
		b.WriteString("Recommendations:\n")
		for _, s := range p.Recommendations {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	return b.String()
}
