// Package gate runs the post-synthesis verification pass. It never blocks the
// happy path: every finding becomes a warning attached to the stored report.
// The one mutation it performs is corrective, not generative — repairing the
// double-magnitude transcription error and overwriting "total X" metrics that
// contradict the profiler's own sums.
package gate

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tabloom/tabloom/internal/citation"
	"github.com/tabloom/tabloom/internal/report"
)

// Tolerance is the relative error accepted between a quoted number and a
// citation value after unit normalization.
const Tolerance = 0.02

// bands considered healthy for the composite score.
const (
	insightLow, insightHigh = 3, 6
	recoLow, recoHigh       = 2, 4
	metricLow, metricHigh   = 1, 6
)

// Inspect verifies a generated report against its frozen citation list and
// the analysis it was grounded on, returning warnings and a composite score.
// The report's unit spelling and contradicted totals are corrected in place.
func Inspect(rep *report.GeneratedReport, citations *citation.List, crossDims []string, fieldTotals map[string]float64) report.Quality {
	var q report.Quality

	rep.Summary = NormalizeUnits(rep.Summary)
	rep.HTML = NormalizeUnits(rep.HTML)
	for i, m := range rep.Metrics {
		rep.Metrics[i].Value = NormalizeUnits(m.Value)
	}
	for i, s := range rep.Insights {
		rep.Insights[i] = NormalizeUnits(s)
	}

	q.Warnings = append(q.Warnings, checkTotals(rep, fieldTotals)...)
	compliant, checked, warns := checkCitations(rep, citations)
	q.Warnings = append(q.Warnings, warns...)
	crossCovered := checkCrossCoverage(rep, crossDims, &q)
	q.Warnings = append(q.Warnings, checkWording(rep)...)

	q.Score = score(compliant, checked, len(rep.Insights), len(rep.Recommendations), len(rep.Metrics), len(crossDims) > 0, crossCovered)
	return q
}

// numberToken matches a numeric-looking token with an optional magnitude
// suffix, tolerating thousands separators.
var numberToken = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?(?:\s*(?:hundred-million|ten-thousand))?`)

// checkCitations extracts every numeric token from the narrative and key
// metrics and verifies each against the citation list.
func checkCitations(rep *report.GeneratedReport, citations *citation.List) (compliant, checked int, warns []string) {
	if citations == nil || citations.Len() == 0 {
		return 0, 0, nil
	}
	type located struct{ token, where string }
	var tokens []located
	for _, tok := range extractTokens(rep.Summary) {
		tokens = append(tokens, located{tok, "summary"})
	}
	for _, tok := range extractTokens(stripHTML(rep.HTML)) {
		tokens = append(tokens, located{tok, "narrative"})
	}
	for i, s := range rep.Insights {
		for _, tok := range extractTokens(s) {
			tokens = append(tokens, located{tok, fmt.Sprintf("insight %d", i+1)})
		}
	}
	for _, m := range rep.Metrics {
		for _, tok := range extractTokens(m.Value) {
			tokens = append(tokens, located{tok, fmt.Sprintf("metric %q", m.Label)})
		}
	}

	for _, lt := range tokens {
		checked++
		if tokenCompliant(lt.token, citations) {
			compliant++
		} else {
			warns = append(warns, fmt.Sprintf("uncited number %q in %s", lt.token, lt.where))
		}
	}
	return compliant, checked, warns
}

func extractTokens(text string) []string {
	var out []string
	for _, tok := range numberToken.FindAllString(text, -1) {
		tok = strings.TrimSpace(tok)
		if ignorableToken(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// ignorableToken skips tokens that are structural rather than factual:
// years, percentages of citation-derived shares, and small ordinals like
// list positions that the narrative needs for plain prose.
func ignorableToken(tok string) bool {
	if strings.Contains(tok, "hundred-million") || strings.Contains(tok, "ten-thousand") {
		return false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", ""), 64)
	if err != nil {
		return true
	}
	if v >= 1900 && v <= 2100 && v == math.Trunc(v) {
		return true // calendar years
	}
	return v <= 12 && v == math.Trunc(v) // ordinals, month numbers, tiny counts
}

// tokenCompliant accepts a token if it appears verbatim in a citation, or if
// its magnitude-normalized value lands within Tolerance of a citation value.
func tokenCompliant(tok string, citations *citation.List) bool {
	for _, f := range citations.Facts() {
		if strings.Contains(f.Text, tok) {
			return true
		}
	}
	v, ok := TokenValue(tok)
	if !ok {
		return false
	}
	for _, f := range citations.Facts() {
		if !f.HasValue() {
			continue
		}
		if withinTolerance(v, f.Value) {
			return true
		}
	}
	return false
}

// TokenValue parses a numeric token, resolving magnitude suffixes and
// stripping thousands separators.
func TokenValue(tok string) (float64, bool) {
	mult := 1.0
	switch {
	case strings.Contains(tok, "hundred-million"):
		mult = citation.HundredMillion
		tok = strings.Replace(tok, "hundred-million", "", 1)
	case strings.Contains(tok, "ten-thousand"):
		mult = citation.TenThousand
		tok = strings.Replace(tok, "ten-thousand", "", 1)
	}
	raw := strings.ReplaceAll(strings.TrimSpace(tok), ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v * mult, true
}

func withinTolerance(a, b float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return false
	}
	return math.Abs(a-b)/scale <= Tolerance
}

// doubleMagnitude matches the specific transcription error where a value
// meant as hundred-million is written as ten-thousand of ten-thousand.
var doubleMagnitude = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)\s*ten-thousand[\s-]+ten-thousand`)

// oversizedTenThousand matches a mantissa of 10,000 or more stuck on the
// smaller unit, which should have been re-expressed in the larger one.
var oversizedTenThousand = regexp.MustCompile(`(\d{5,}(?:\.\d+)?)\s*ten-thousand\b`)

// NormalizeUnits corrects magnitude-unit transcription errors in text.
// Idempotent: normalized output contains no pattern this function rewrites.
func NormalizeUnits(text string) string {
	out := doubleMagnitude.ReplaceAllString(text, "$1 hundred-million")
	out = oversizedTenThousand.ReplaceAllStringFunc(out, func(m string) string {
		sub := oversizedTenThousand.FindStringSubmatch(m)
		v, err := strconv.ParseFloat(strings.ReplaceAll(sub[1], ",", ""), 64)
		if err != nil {
			return m
		}
		return citation.FormatValue(v * citation.TenThousand)
	})
	return out
}

// checkCrossCoverage warns when cross-dataset stats existed but no insight
// mentions the shared-dimension vocabulary.
func checkCrossCoverage(rep *report.GeneratedReport, crossDims []string, q *report.Quality) bool {
	if len(crossDims) == 0 {
		return true
	}
	keywords := []string{"across files", "across datasets", "cross-file", "cross-dataset"}
	for _, d := range crossDims {
		keywords = append(keywords, strings.ToLower(d))
	}
	haystack := strings.ToLower(strings.Join(rep.Insights, "\n"))
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	q.Warnings = append(q.Warnings, "cross-dataset statistics exist but no insight covers them")
	return false
}

// forbiddenPhrases conflate "no data recorded for a period" with "the value
// dropped to zero" — a missing row is not a measured decline.
var forbiddenPhrases = []string{
	"dropped to zero",
	"fell to zero",
	"plummeted to zero",
	"declined to zero",
	"decreased to zero",
}

func checkWording(rep *report.GeneratedReport) []string {
	var warns []string
	haystack := strings.ToLower(rep.Summary + "\n" + stripHTML(rep.HTML) + "\n" + strings.Join(rep.Insights, "\n"))
	for _, p := range forbiddenPhrases {
		if strings.Contains(haystack, p) {
			warns = append(warns, fmt.Sprintf("wording %q may conflate missing data with a measured drop to zero", p))
		}
	}
	return warns
}

// checkTotals cross-checks "total X" metric labels against the profiler's
// own sums and overwrites the model's value when it is off by more than 50%.
func checkTotals(rep *report.GeneratedReport, fieldTotals map[string]float64) []string {
	var warns []string
	for i, m := range rep.Metrics {
		label := strings.ToLower(m.Label)
		if !strings.HasPrefix(label, "total ") {
			continue
		}
		field := strings.TrimSpace(strings.TrimPrefix(label, "total "))
		if j := strings.IndexAny(field, " ("); j >= 0 {
			field = field[:j]
		}
		actual, ok := fieldTotals[field]
		if !ok {
			continue
		}
		got, parsed := TokenValue(strings.TrimSpace(m.Value))
		if !parsed {
			continue
		}
		scale := math.Max(math.Abs(actual), math.Abs(got))
		if scale == 0 || math.Abs(actual-got)/scale <= 0.5 {
			continue
		}
		rep.Metrics[i].Value = citation.FormatValue(actual)
		warns = append(warns, fmt.Sprintf("metric %q value %q contradicted the computed sum; corrected to %q",
			m.Label, m.Value, rep.Metrics[i].Value))
	}
	return warns
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// stripHTML removes markup so attribute values such as chart ids are not
// scanned as numeric tokens.
func stripHTML(s string) string {
	return htmlTag.ReplaceAllString(s, " ")
}

func score(compliant, checked, insights, recos, metrics int, hasCross, crossCovered bool) int {
	coverage := 1.0
	if checked > 0 {
		coverage = float64(compliant) / float64(checked)
	}
	s := coverage * 40
	s += bandScore(insights, insightLow, insightHigh) * 15
	s += bandScore(recos, recoLow, recoHigh) * 15
	s += bandScore(metrics, metricLow, metricHigh) * 20
	if !hasCross || crossCovered {
		s += 10
	}
	if s < 0 {
		s = 0
	}
	if s > 100 {
		s = 100
	}
	return int(math.Round(s))
}

// bandScore gives full credit inside [lo, hi], half credit one step outside,
// nothing further out. Zero items score zero.
func bandScore(n, lo, hi int) float64 {
	switch {
	case n >= lo && n <= hi:
		return 1
	case n == lo-1 || n == hi+1:
		return 0.5
	default:
		return 0
	}
}
