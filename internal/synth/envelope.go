package synth

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/tabloom/tabloom/internal/utils"
)

// envelope is the JSON shape the narrative call must return.
type envelope struct {
	Title           string   `json:"title"`
	Summary         string   `json:"summary"`
	HTML            string   `json:"html"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}

// ParseError reports model output that is not the expected JSON envelope and
// could not be recovered.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unexpected model output: %s", e.Reason)
}

// parseEnvelope decodes the narrative envelope. On malformed JSON it attempts
// a best-effort recovery by scanning for the summary and html string values
// inside the (possibly truncated) text before giving up.
func parseEnvelope(raw string) (*envelope, error) {
	cleaned := utils.StripCodeFences(raw)
	var env envelope
	if err := json.Unmarshal([]byte(cleaned), &env); err == nil {
		if env.HTML == "" && env.Summary == "" {
			return nil, &ParseError{Reason: "envelope missing summary and html"}
		}
		return &env, nil
	}
	return recoverEnvelope(cleaned)
}

var (
	summaryField = regexp.MustCompile(`"summary"\s*:\s*("(?:[^"\\]|\\.)*")`)
	htmlField    = regexp.MustCompile(`"html"\s*:\s*("(?:[^"\\]|\\.)*")`)
)

func recoverEnvelope(s string) (*envelope, error) {
	env := &envelope{}
	if m := summaryField.FindStringSubmatch(s); m != nil {
		if v, err := strconv.Unquote(m[1]); err == nil {
			env.Summary = v
		}
	}
	if m := htmlField.FindStringSubmatch(s); m != nil {
		if v, err := strconv.Unquote(m[1]); err == nil {
			env.HTML = v
		}
	}
	if env.HTML == "" && env.Summary == "" {
		return nil, &ParseError{Reason: "not a JSON envelope and no summary/html fields found"}
	}
	return env, nil
}

var chartRef = regexp.MustCompile(`data-chart-id="([^"]+)"`)

// referencedChartIDs extracts chart ids the narrative references, in order.
func referencedChartIDs(html string) []string {
	var ids []string
	for _, m := range chartRef.FindAllStringSubmatch(html, -1) {
		ids = append(ids, m[1])
	}
	return ids
}
