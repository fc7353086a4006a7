// Package relate detects shared dimensions across multiple profiled datasets
// and computes grouped cross-dataset statistics. This is the only place
// multi-file semantics exist; single-dataset requests produce empty results.
package relate

import (
	"sort"

	"github.com/tabloom/tabloom/internal/dataset"
	"github.com/tabloom/tabloom/internal/profile"
)

// Relationship links two datasets through a shared categorical field whose
// value sets overlap. Derived per request, never persisted.
type Relationship struct {
	A       int    // dataset index
	B       int    // dataset index
	Field   string // shared header
	Overlap int    // size of the shared value intersection
}

// GroupSum is one group's aggregate within a CrossDatasetStat.
type GroupSum struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// CrossDatasetStat is a numeric field summed per shared-dimension group.
// It carries enough structure to become both a citation and a chart.
type CrossDatasetStat struct {
	Dimension   string     `json:"dimension"`
	Metric      string     `json:"metric"`
	DatasetName string     `json:"datasetName"`
	Groups      []GroupSum `json:"groups"` // sorted by value desc
	Total       float64    `json:"total"`
	TopShare    float64    `json:"topShare"` // largest group's share of Total
}

// Options tunes relationship detection.
type Options struct {
	// MinOverlap is the smallest shared-value intersection that counts as a
	// relationship. Header equality with no shared values never qualifies.
	MinOverlap int
	// MaxGroups caps the number of groups kept per stat.
	MaxGroups int
}

// DefaultOptions returns the thresholds used by the pipeline.
func DefaultOptions() Options {
	return Options{MinOverlap: 1, MaxGroups: 12}
}

// Detect declares a Relationship for every dataset pair sharing a categorical
// header with at least opt.MinOverlap common non-empty values.
func Detect(profiled []profile.ProfiledDataset, opt Options) []Relationship {
	if opt.MinOverlap <= 0 {
		opt.MinOverlap = 1
	}
	var rels []Relationship
	for i := 0; i < len(profiled); i++ {
		for j := i + 1; j < len(profiled); j++ {
			for _, fa := range profiled[i].Fields {
				if fa.Type != dataset.FieldCategorical {
					continue
				}
				fb := profiled[j].Field(fa.Name)
				if fb == nil || fb.Type != dataset.FieldCategorical {
					continue
				}
				n := overlap(profiled[i].Dataset.Column(fa.Name), profiled[j].Dataset.Column(fa.Name))
				if n >= opt.MinOverlap {
					rels = append(rels, Relationship{A: i, B: j, Field: fa.Name, Overlap: n})
				}
			}
		}
	}
	return rels
}

// Aggregate computes cross-dataset statistics for every declared relationship:
// each numeric field of each linked dataset is summed per shared-dimension
// group. An empty relationship set yields an empty result, not an error.
func Aggregate(profiled []profile.ProfiledDataset, rels []Relationship, opt Options) []CrossDatasetStat {
	if opt.MaxGroups <= 0 {
		opt.MaxGroups = 12
	}
	var stats []CrossDatasetStat
	seen := make(map[string]bool)
	for _, rel := range rels {
		for _, idx := range []int{rel.A, rel.B} {
			p := profiled[idx]
			for _, metric := range p.NumericFields() {
				key := p.Dataset.Name + "\x00" + rel.Field + "\x00" + metric
				if seen[key] {
					continue
				}
				seen[key] = true
				if s, ok := groupSum(p.Dataset, rel.Field, metric, opt.MaxGroups); ok {
					stats = append(stats, s)
				}
			}
		}
	}
	return stats
}

// Dimensions returns the distinct shared-dimension names, in first-seen order.
func Dimensions(rels []Relationship) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range rels {
		if !seen[r.Field] {
			seen[r.Field] = true
			out = append(out, r.Field)
		}
	}
	return out
}

func groupSum(ds *dataset.Dataset, dim, metric string, maxGroups int) (CrossDatasetStat, bool) {
	sums := make(map[string]float64)
	order := make([]string, 0)
	var total float64
	for _, row := range ds.Rows {
		key := row[dim]
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
		total += x
	}
	if len(sums) == 0 {
		return CrossDatasetStat{}, false
	}
	groups := make([]GroupSum, 0, len(sums))
	for _, k := range order {
		groups = append(groups, GroupSum{Key: k, Value: sums[k]})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Value == groups[j].Value {
			return groups[i].Key < groups[j].Key
		}
		return groups[i].Value > groups[j].Value
	})
	if len(groups) > maxGroups {
		groups = groups[:maxGroups]
	}
	s := CrossDatasetStat{
		Dimension:   dim,
		Metric:      metric,
		DatasetName: ds.Name,
		Groups:      groups,
		Total:       total,
	}
	if total != 0 {
		s.TopShare = groups[0].Value / total
	}
	return s, true
}

func overlap(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	n := 0
	counted := make(map[string]bool)
	for _, v := range b {
		if set[v] && !counted[v] {
			counted[v] = true
			n++
		}
	}
	return n
}
