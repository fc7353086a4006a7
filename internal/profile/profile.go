// Package profile infers a schema and per-field statistics for a single
// dataset. Classification is strict: a field is numeric only when every
// non-null value parses as a number, temporal only when every non-null value
// parses as a calendar date, categorical otherwise. Empty fields default to
// categorical.
package profile

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tabloom/tabloom/internal/dataset"
)

// NumericStats summarizes a numeric field. Sum uses standard left-to-right
// summation so identical input yields identical output.
type NumericStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Sum  float64 `json:"sum"`
	Mean float64 `json:"mean"`
}

// CategoryCount is one categorical value with its occurrence count.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CategoricalStats summarizes a categorical field.
type CategoricalStats struct {
	Distinct int             `json:"distinct"`
	Top      []CategoryCount `json:"top"`
}

// TemporalStats summarizes a temporal field.
type TemporalStats struct {
	Valid    int       `json:"valid"`
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// FieldProfile is the inferred type and statistics for one field. Exactly one
// of the stats pointers is set, matching Type. Never mutated after creation.
type FieldProfile struct {
	Name        string            `json:"name"`
	Type        dataset.FieldType `json:"type"`
	Numeric     *NumericStats     `json:"numeric,omitempty"`
	Categorical *CategoricalStats `json:"categorical,omitempty"`
	Temporal    *TemporalStats    `json:"temporal,omitempty"`
}

// ProfiledDataset pairs a dataset with its field profiles.
type ProfiledDataset struct {
	Dataset *dataset.Dataset
	Fields  []FieldProfile
}

// Field returns the profile for the named field, or nil.
func (p ProfiledDataset) Field(name string) *FieldProfile {
	for i := range p.Fields {
		if p.Fields[i].Name == name {
			return &p.Fields[i]
		}
	}
	return nil
}

// NumericFields returns the names of all numeric fields in header order.
func (p ProfiledDataset) NumericFields() []string {
	var out []string
	for _, f := range p.Fields {
		if f.Type == dataset.FieldNumeric {
			out = append(out, f.Name)
		}
	}
	return out
}

const topValueLimit = 8

// Profile infers field types and statistics for one dataset. A zero-row
// dataset yields one categorical profile per header with no statistics.
func Profile(ds *dataset.Dataset) ProfiledDataset {
	profiles := make([]FieldProfile, 0, len(ds.Fields))
	for _, name := range ds.Fields {
		profiles = append(profiles, profileField(ds, name))
	}
	return ProfiledDataset{Dataset: ds, Fields: profiles}
}

func profileField(ds *dataset.Dataset, name string) FieldProfile {
	values := ds.Column(name)
	if len(values) == 0 {
		return FieldProfile{Name: name, Type: dataset.FieldCategorical, Categorical: &CategoricalStats{}}
	}

	if nums, ok := parseAllNumbers(values); ok {
		return FieldProfile{Name: name, Type: dataset.FieldNumeric, Numeric: numericStats(nums)}
	}
	if times, ok := parseAllDates(values); ok {
		return FieldProfile{Name: name, Type: dataset.FieldTemporal, Temporal: temporalStats(times)}
	}
	return FieldProfile{Name: name, Type: dataset.FieldCategorical, Categorical: categoricalStats(values)}
}

func parseAllNumbers(values []string) ([]float64, bool) {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		f, ok := ParseNumber(v)
		if !ok {
			return nil, false
		}
		nums = append(nums, f)
	}
	return nums, true
}

func parseAllDates(values []string) ([]time.Time, bool) {
	times := make([]time.Time, 0, len(values))
	for _, v := range values {
		t, ok := ParseDate(v)
		if !ok {
			return nil, false
		}
		times = append(times, t)
	}
	return times, true
}

func numericStats(nums []float64) *NumericStats {
	s := &NumericStats{Min: nums[0], Max: nums[0]}
	for _, x := range nums {
		if x < s.Min {
			s.Min = x
		}
		if x > s.Max {
			s.Max = x
		}
		s.Sum += x
	}
	s.Mean = s.Sum / float64(len(nums))
	return s
}

func categoricalStats(values []string) *CategoricalStats {
	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
	}
	top := make([]CategoryCount, 0, len(counts))
	for v, c := range counts {
		top = append(top, CategoryCount{Value: v, Count: c})
	}
	// count desc, then value asc for deterministic output
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count == top[j].Count {
			return top[i].Value < top[j].Value
		}
		return top[i].Count > top[j].Count
	})
	s := &CategoricalStats{Distinct: len(counts)}
	if len(top) > topValueLimit {
		top = top[:topValueLimit]
	}
	s.Top = top
	return s
}

func temporalStats(times []time.Time) *TemporalStats {
	s := &TemporalStats{Valid: len(times), Earliest: times[0], Latest: times[0]}
	for _, t := range times {
		if t.Before(s.Earliest) {
			s.Earliest = t
		}
		if t.After(s.Latest) {
			s.Latest = t
		}
	}
	return s
}

// ParseNumber parses a cell as a float, tolerating thousands separators and a
// trailing percent sign.
func ParseNumber(s string) (float64, bool) {
	raw := strings.TrimSpace(s)
	raw = strings.ReplaceAll(raw, ",", "")
	raw = strings.TrimSuffix(raw, "%")
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var dateLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "2006-01", "2006/01",
	"02/01/2006", "01/02/2006", "2006-01-02 15:04", "2006-01-02 15:04:05",
}

// ParseDate parses a cell as a calendar date using a fixed set of layouts.
func ParseDate(s string) (time.Time, bool) {
	v := strings.TrimSpace(s)
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
