// Package outline models the section plan of a report: who authored it (the
// user or the model), which section types appear, and the pre-synthesis
// validation that keeps cross-dataset findings from being silently dropped.
package outline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tabloom/tabloom/internal/ai"
	"github.com/tabloom/tabloom/internal/utils"
)

// SectionType enumerates the report section families. Every type except
// Chart should appear at most once; duplicates are collapsed post hoc.
type SectionType string

const (
	Summary        SectionType = "summary"
	Metrics        SectionType = "metrics"
	Chart          SectionType = "chart"
	Insight        SectionType = "insight"
	Recommendation SectionType = "recommendation"
)

// Section is one planned report section. Mutable by the caller until
// synthesis starts.
type Section struct {
	ID          string      `json:"id"`
	Type        SectionType `json:"type"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Enabled     bool        `json:"enabled"`
}

// Outline is the ordered section plan for one report.
type Outline struct {
	Sections []Section `json:"sections"`
}

// Default returns the built-in outline used when the model supplies none.
func Default(hasCross bool) Outline {
	o := Outline{Sections: []Section{
		{ID: "sec-summary", Type: Summary, Title: "Overview", Enabled: true},
		{ID: "sec-metrics", Type: Metrics, Title: "Key Metrics", Enabled: true},
		{ID: "sec-chart", Type: Chart, Title: "Visualizations", Enabled: true},
		{ID: "sec-insight", Type: Insight, Title: "Insights", Enabled: true},
		{ID: "sec-reco", Type: Recommendation, Title: "Recommendations", Enabled: true},
	}}
	if hasCross {
		o.ensureCross("")
	}
	return o
}

var validTypes = map[SectionType]bool{
	Summary: true, Metrics: true, Chart: true, Insight: true, Recommendation: true,
}

// Build asks the model for a section list tailored to the idea. Malformed
// output falls back to the default outline rather than failing the request.
func Build(ctx context.Context, gen ai.GenerateFunc, model, idea string, hasCross bool) Outline {
	system := "You plan the section structure of data reports. " +
		"Reply with a JSON array of {id, type, title, description} objects. " +
		"Allowed types: summary, metrics, chart, insight, recommendation. No prose."
	user := fmt.Sprintf("Plan sections for a report about: %s", idea)
	if hasCross {
		user += "\nThe input spans multiple files with a shared dimension; include a section covering cross-file findings."
	}
	raw, err := gen(ctx, system, user, model)
	if err != nil {
		return Default(hasCross)
	}
	var sections []Section
	if err := json.Unmarshal([]byte(utils.StripCodeFences(raw)), &sections); err != nil || len(sections) == 0 {
		return Default(hasCross)
	}
	out := Outline{}
	for i, s := range sections {
		if !validTypes[s.Type] {
			continue
		}
		if s.ID == "" {
			s.ID = fmt.Sprintf("sec-%02d", i+1)
		}
		s.Enabled = true
		out.Sections = append(out.Sections, s)
	}
	if len(out.Sections) == 0 {
		return Default(hasCross)
	}
	if hasCross {
		out.ensureCross("")
	}
	return out
}

var crossKeywords = []string{"across files", "across datasets", "cross-file", "cross-dataset", "shared dimension"}

// EnsureCrossSection guarantees the outline structurally covers cross-dataset
// findings when any exist: if no enabled section's title or description looks
// cross-dataset-flavored (or names the grouping dimension), a synthetic
// insight section is injected. Returns true when a section was added.
func (o *Outline) EnsureCrossSection(dimensions []string) bool {
	keywords := append([]string{}, crossKeywords...)
	for _, d := range dimensions {
		if d != "" {
			keywords = append(keywords, strings.ToLower(d))
		}
	}
	for _, s := range o.Sections {
		if !s.Enabled {
			continue
		}
		text := strings.ToLower(s.Title + " " + s.Description)
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				return false
			}
		}
	}
	o.injectCross(dimensions)
	return true
}

func (o *Outline) ensureCross(dim string) {
	var dims []string
	if dim != "" {
		dims = []string{dim}
	}
	o.EnsureCrossSection(dims)
}

func (o *Outline) injectCross(dimensions []string) {
	desc := "Findings that hold across files"
	if len(dimensions) > 0 {
		desc = fmt.Sprintf("Findings across files grouped by %s", strings.Join(dimensions, ", "))
	}
	o.Sections = append(o.Sections, Section{
		ID:          "sec-cross",
		Type:        Insight,
		Title:       "Cross-file Findings",
		Description: desc,
		Enabled:     true,
	})
}

// DuplicateTypes returns the non-chart section types that appear more than
// once among enabled sections.
func (o Outline) DuplicateTypes() []SectionType {
	counts := make(map[SectionType]int)
	for _, s := range o.Sections {
		if s.Enabled && s.Type != Chart {
			counts[s.Type]++
		}
	}
	var dups []SectionType
	for _, t := range []SectionType{Summary, Metrics, Insight, Recommendation} {
		if counts[t] > 1 {
			dups = append(dups, t)
		}
	}
	return dups
}

// Collapse merges duplicate non-chart sections with one small model call. The
// merged outline must keep the union of the duplicates' described content.
// Callers treat an error as non-fatal and keep the outline as-is.
func Collapse(ctx context.Context, gen ai.GenerateFunc, model string, o Outline) (Outline, error) {
	dups := o.DuplicateTypes()
	if len(dups) == 0 {
		return o, nil
	}
	system := "You deduplicate report outlines. Merge sections of the same type into one, " +
		"preserving the union of their titles and descriptions. Chart sections are left alone. " +
		"Reply with the full JSON array of {id, type, title, description} objects. No prose."
	raw, err := gen(ctx, system, o.JSON(), model)
	if err != nil {
		return o, fmt.Errorf("collapse outline: %w", err)
	}
	var sections []Section
	if err := json.Unmarshal([]byte(utils.StripCodeFences(raw)), &sections); err != nil || len(sections) == 0 {
		return o, fmt.Errorf("collapse outline: unparseable response")
	}
	merged := Outline{}
	for _, s := range sections {
		if !validTypes[s.Type] {
			continue
		}
		s.Enabled = true
		merged.Sections = append(merged.Sections, s)
	}
	if len(merged.Sections) == 0 || len(merged.DuplicateTypes()) > 0 {
		return o, fmt.Errorf("collapse outline: duplicates remain")
	}
	return merged, nil
}

// JSON renders the enabled sections for prompt embedding.
func (o Outline) JSON() string {
	enabled := make([]Section, 0, len(o.Sections))
	for _, s := range o.Sections {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	b, err := json.Marshal(enabled)
	if err != nil {
		return "[]"
	}
	return string(b)
}
