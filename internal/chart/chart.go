// Package chart shapes profiled statistics into typed, identified chart
// candidates. Candidates are over-generated and cheap: the narrative later
// references a subset by id and never embeds chart data directly.
package chart

import (
	"fmt"
	"sort"

	"github.com/tabloom/tabloom/internal/dataset"
	"github.com/tabloom/tabloom/internal/profile"
	"github.com/tabloom/tabloom/internal/relate"
)

// Type is the chart rendering family.
type Type string

const (
	Bar  Type = "bar"
	Line Type = "line"
)

// Point is one shaped datum.
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Candidate is a chart specification with a request-scoped stable id. The id
// is a foreign key: downstream narrative references it and a renderer
// resolves it.
type Candidate struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Type   Type    `json:"type"`
	Points []Point `json:"points"`
	Source string  `json:"source"` // which stat produced it
	Score  float64 `json:"score"`
}

// line charts need enough points to show a trend; bar charts need few enough
// categories to stay readable.
const (
	minLinePoints  = 3
	maxBarGroups   = 12
	lineCutoverLen = 8
)

// Candidates generates chart candidates from single-dataset profiles and
// cross-dataset stats. Ids are assigned in construction order and are stable
// for the lifetime of the request.
func Candidates(profiled []profile.ProfiledDataset, stats []relate.CrossDatasetStat) []Candidate {
	var out []Candidate
	next := func() string { return fmt.Sprintf("chart-%02d", len(out)+1) }

	for _, p := range profiled {
		for _, tf := range p.Fields {
			if tf.Type != dataset.FieldTemporal {
				continue
			}
			for _, metric := range p.NumericFields() {
				pts := sumByKey(p.Dataset, tf.Name, metric, true)
				if len(pts) < minLinePoints {
					continue
				}
				out = append(out, Candidate{
					ID:     next(),
					Title:  fmt.Sprintf("%s over %s (%s)", metric, tf.Name, p.Dataset.Name),
					Type:   Line,
					Points: pts,
					Source: fmt.Sprintf("%s:%s/%s", p.Dataset.Name, tf.Name, metric),
					Score:  scoreLine(pts),
				})
			}
		}
		for _, cf := range p.Fields {
			if cf.Type != dataset.FieldCategorical || cf.Categorical == nil {
				continue
			}
			if cf.Categorical.Distinct < 2 || cf.Categorical.Distinct > maxBarGroups {
				continue
			}
			for _, metric := range p.NumericFields() {
				pts := sumByKey(p.Dataset, cf.Name, metric, false)
				if len(pts) < 2 {
					continue
				}
				out = append(out, Candidate{
					ID:     next(),
					Title:  fmt.Sprintf("%s by %s (%s)", metric, cf.Name, p.Dataset.Name),
					Type:   Bar,
					Points: pts,
					Source: fmt.Sprintf("%s:%s/%s", p.Dataset.Name, cf.Name, metric),
					Score:  scoreBar(pts),
				})
			}
		}
	}

	for _, s := range stats {
		pts := make([]Point, len(s.Groups))
		for i, g := range s.Groups {
			pts[i] = Point{Label: g.Key, Value: g.Value}
		}
		typ := Bar
		if len(pts) >= lineCutoverLen {
			typ = Line
		}
		out = append(out, Candidate{
			ID:     next(),
			Title:  fmt.Sprintf("%s by %s across files", s.Metric, s.Dimension),
			Type:   typ,
			Points: pts,
			Source: fmt.Sprintf("cross:%s/%s", s.Dimension, s.Metric),
			Score:  scoreBar(pts) + 0.5, // cross-dataset views rank above single-file ones
		})
	}
	return out
}

// ByID indexes candidates for narrative reference resolution.
func ByID(cands []Candidate) map[string]Candidate {
	m := make(map[string]Candidate, len(cands))
	for _, c := range cands {
		m[c.ID] = c
	}
	return m
}

func sumByKey(ds *dataset.Dataset, keyField, metric string, sortByKey bool) []Point {
	sums := make(map[string]float64)
	order := make([]string, 0)
	for _, row := range ds.Rows {
		key := row[keyField]
		if key == "" {
			continue
		}
		x, ok := profile.ParseNumber(row[metric])
		if !ok {
			continue
		}
		if _, exists := sums[key]; !exists {
			order = append(order, key)
		}
		sums[key] += x
	}
	pts := make([]Point, 0, len(sums))
	for _, k := range order {
		pts = append(pts, Point{Label: k, Value: sums[k]})
	}
	if sortByKey {
		sort.Slice(pts, func(i, j int) bool { return pts[i].Label < pts[j].Label })
	} else {
		sort.Slice(pts, func(i, j int) bool {
			if pts[i].Value == pts[j].Value {
				return pts[i].Label < pts[j].Label
			}
			return pts[i].Value > pts[j].Value
		})
	}
	return pts
}

func scoreLine(pts []Point) float64 {
	// more points, better trend
	n := float64(len(pts))
	if n > 24 {
		n = 24
	}
	return n / 24
}

func scoreBar(pts []Point) float64 {
	// mid-cardinality comparisons read best
	n := len(pts)
	switch {
	case n >= 3 && n <= 8:
		return 1
	case n == 2:
		return 0.6
	default:
		return 0.4
	}
}
