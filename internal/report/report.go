// Package report holds the shapes shared by both analysis paths and by the
// synthesis and verification stages.
package report

import (
	"time"

	"github.com/tabloom/tabloom/internal/chart"
	"github.com/tabloom/tabloom/internal/citation"
)

// MetricItem is one labeled key metric surfaced in the report.
type MetricItem struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Quality is the non-blocking verification outcome attached to a stored
// report. Warnings never abort generation.
type Quality struct {
	Warnings []string `json:"warnings,omitempty"`
	Score    int      `json:"score"`
}

// GeneratedReport is the only entity handed to the persistence collaborator.
// HTML references charts by id; Charts carries the resolved candidates.
type GeneratedReport struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Summary         string            `json:"summary"`
	HTML            string            `json:"html"`
	Metrics         []MetricItem      `json:"metrics,omitempty"`
	Insights        []string          `json:"insights,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
	Charts          []chart.Candidate `json:"charts,omitempty"`
	Quality         Quality           `json:"quality"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// AnalysisResult is the path-agnostic output of dataset analysis. The
// profiler/chart path and the SQL path both produce this shape, so synthesis
// and the quality gate never care which one ran.
type AnalysisResult struct {
	// Summary is the prompt-facing description of the datasets.
	Summary string
	// Citations is the frozen grounding contract for this request.
	Citations *citation.List
	// Candidates are the over-generated chart specifications.
	Candidates []chart.Candidate
	// CrossDimensions names the shared dimensions found across datasets;
	// empty for single-dataset requests.
	CrossDimensions []string
	// Metrics are precomputed key metrics derived from the analysis.
	Metrics []MetricItem
	// FieldTotals maps numeric field name to its profiled sum, used by the
	// gate to cross-check "total X" metric labels.
	FieldTotals map[string]float64
}

// HasCrossStats reports whether any cross-dataset statistic exists.
func (r *AnalysisResult) HasCrossStats() bool {
	return r != nil && len(r.CrossDimensions) > 0
}
