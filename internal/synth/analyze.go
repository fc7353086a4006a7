package synth

import (
	"fmt"
	"strings"

	"github.com/tabloom/tabloom/internal/chart"
	"github.com/tabloom/tabloom/internal/citation"
	"github.com/tabloom/tabloom/internal/dataset"
	"github.com/tabloom/tabloom/internal/profile"
	"github.com/tabloom/tabloom/internal/relate"
	"github.com/tabloom/tabloom/internal/report"
)

const maxAnalysisMetrics = 6

// BuildAnalysis runs the profiler path: per-dataset profiling, cross-dataset
// relationship detection, chart candidate generation, and the citation list.
// The result has the same shape as the SQL path's output.
func BuildAnalysis(datasets []*dataset.Dataset) *report.AnalysisResult {
	profiled := profileAll(datasets)
	opt := relate.DefaultOptions()
	rels := relate.Detect(profiled, opt)
	stats := relate.Aggregate(profiled, rels, opt)

	res := &report.AnalysisResult{
		Summary:         summarize(profiled, rels),
		Citations:       citation.Build(profiled, stats),
		Candidates:      chart.Candidates(profiled, stats),
		CrossDimensions: relate.Dimensions(rels),
		FieldTotals:     make(map[string]float64),
	}

	for _, p := range profiled {
		for _, f := range p.Fields {
			if f.Type != dataset.FieldNumeric || f.Numeric == nil {
				continue
			}
			res.FieldTotals[strings.ToLower(f.Name)] = f.Numeric.Sum
			if len(res.Metrics) < maxAnalysisMetrics {
				res.Metrics = append(res.Metrics, report.MetricItem{
					Label: "total " + f.Name,
					Value: citation.FormatValue(f.Numeric.Sum),
				})
			}
		}
	}
	res.Citations.Freeze()
	return res
}

func profileAll(datasets []*dataset.Dataset) []profile.ProfiledDataset {
	profiled := make([]profile.ProfiledDataset, len(datasets))
	for i, ds := range datasets {
		profiled[i] = profile.Profile(ds)
	}
	return profiled
}

// summarize renders the prompt-facing dataset description. Schema and shape
// only; the numbers the model may quote travel in the citation list.
func summarize(profiled []profile.ProfiledDataset, rels []relate.Relationship) string {
	var b strings.Builder
	b.WriteString("[DATASETS]\n")
	for _, p := range profiled {
		fmt.Fprintf(&b, "%s: %d rows, %d fields\n", p.Dataset.Name, len(p.Dataset.Rows), len(p.Fields))
		for _, f := range p.Fields {
			fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Type)
		}
	}
	if len(rels) > 0 {
		b.WriteString("\n[SHARED DIMENSIONS]\n")
		for _, r := range rels {
			fmt.Fprintf(&b, "- %q links %s and %s (%d shared values)\n",
				r.Field, profiled[r.A].Dataset.Name, profiled[r.B].Dataset.Name, r.Overlap)
		}
	}
	return b.String()
}

func textOnlyAnalysis(text string) *report.AnalysisResult {
	res := &report.AnalysisResult{
		Summary:     text,
		Citations:   &citation.List{},
		FieldTotals: map[string]float64{},
	}
	res.Citations.Freeze()
	return res
}
