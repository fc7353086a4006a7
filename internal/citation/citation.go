// Package citation renders every computed fact into literal, unit-consistent
// strings. The resulting list is the closed universe of numbers the generated
// narrative may quote: downstream verification accepts a number only if it is
// traceable to this list.
package citation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tabloom/tabloom/internal/dataset"
	"github.com/tabloom/tabloom/internal/profile"
	"github.com/tabloom/tabloom/internal/relate"
)

// Magnitude unit thresholds. Values are re-expressed in the largest unit that
// keeps the mantissa small, so a total never reads "38800 ten-thousand" when
// "3.88 hundred-million" is meant.
const (
	TenThousand    = 1e4
	HundredMillion = 1e8
)

// Fact is one rendered, quotable statement. Value carries the underlying
// number for tolerance checks; facts without a dominant number use NaN.
type Fact struct {
	Text  string  `json:"text"`
	Value float64 `json:"value"`
}

// HasValue reports whether the fact carries a checkable number.
func (f Fact) HasValue() bool { return !math.IsNaN(f.Value) }

// List is the ordered citation list for one request. Append-only while
// building, frozen before synthesis.
type List struct {
	facts  []Fact
	frozen bool
}

// PromptCap bounds how many facts are surfaced to model prompts. The full
// list stays available internally.
const PromptCap = 20

// Build renders all single-dataset and cross-dataset statistics into facts,
// in construction order.
func Build(profiled []profile.ProfiledDataset, stats []relate.CrossDatasetStat) *List {
	l := &List{}
	for _, p := range profiled {
		name := p.Dataset.Name
		l.Add(fmt.Sprintf("%s: %d rows", name, len(p.Dataset.Rows)), float64(len(p.Dataset.Rows)))
		for _, f := range p.Fields {
			switch f.Type {
			case dataset.FieldNumeric:
				l.Add(fmt.Sprintf("total %s (%s): %s", f.Name, name, FormatValue(f.Numeric.Sum)), f.Numeric.Sum)
				l.Add(fmt.Sprintf("mean %s (%s): %s", f.Name, name, FormatValue(f.Numeric.Mean)), f.Numeric.Mean)
				l.Add(fmt.Sprintf("%s (%s) ranges %s to %s", f.Name, name,
					FormatValue(f.Numeric.Min), FormatValue(f.Numeric.Max)), f.Numeric.Max)
			case dataset.FieldCategorical:
				if f.Categorical == nil || f.Categorical.Distinct == 0 {
					continue
				}
				top := f.Categorical.Top[0]
				l.Add(fmt.Sprintf("%s (%s): %d distinct values, most frequent %q (%d rows)",
					f.Name, name, f.Categorical.Distinct, top.Value, top.Count), float64(f.Categorical.Distinct))
			case dataset.FieldTemporal:
				l.Add(fmt.Sprintf("%s (%s): %d valid dates from %s to %s",
					f.Name, name, f.Temporal.Valid,
					f.Temporal.Earliest.Format("2006-01-02"), f.Temporal.Latest.Format("2006-01-02")),
					float64(f.Temporal.Valid))
			}
		}
	}
	for _, s := range stats {
		l.Add(fmt.Sprintf("total %s by %s across files: %s", s.Metric, s.Dimension, FormatValue(s.Total)), s.Total)
		if len(s.Groups) > 0 && s.Total != 0 {
			top := s.Groups[0]
			l.Add(fmt.Sprintf("top %s %q holds %.1f%% of %s (%s)",
				s.Dimension, top.Key, s.TopShare*100, s.Metric, FormatValue(top.Value)), top.Value)
		}
	}
	return l
}

// Add appends one fact. Panics if the list is frozen: freezing marks the
// grounding contract as sealed for the rest of the request.
func (l *List) Add(text string, value float64) {
	if l.frozen {
		panic("citation: add to frozen list")
	}
	l.facts = append(l.facts, Fact{Text: text, Value: value})
}

// Freeze seals the list before synthesis.
func (l *List) Freeze() { l.frozen = true }

// Frozen reports whether the list is sealed.
func (l *List) Frozen() bool { return l.frozen }

// Facts returns all facts in construction order.
func (l *List) Facts() []Fact { return l.facts }

// Len returns the number of facts.
func (l *List) Len() int { return len(l.facts) }

// Rendered returns up to PromptCap fact strings for prompt use.
func (l *List) Rendered() []string {
	n := len(l.facts)
	if n > PromptCap {
		n = PromptCap
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = l.facts[i].Text
	}
	return out
}

// FormatValue renders a number in the single consistent unit for its
// magnitude: >= 1e8 as "X.XX hundred-million", >= 1e4 as "X.XX ten-thousand",
// smaller values plainly.
func FormatValue(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= HundredMillion:
		return trimZeros(fmt.Sprintf("%.2f", v/HundredMillion)) + " hundred-million"
	case abs >= TenThousand:
		return trimZeros(fmt.Sprintf("%.2f", v/TenThousand)) + " ten-thousand"
	default:
		return formatPlain(v)
	}
}

func formatPlain(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return trimZeros(fmt.Sprintf("%.2f", v))
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
