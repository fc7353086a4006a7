package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelopeWellFormed(t *testing.T) {
	raw := `{"title":"T","summary":"S","html":"<p>H</p>","insights":["i1"],"recommendations":["r1"]}`
	env, err := parseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, "T", env.Title)
	assert.Equal(t, "<p>H</p>", env.HTML)
	assert.Equal(t, []string{"i1"}, env.Insights)
}

func TestParseEnvelopeFenced(t *testing.T) {
	raw := "```json\n{\"summary\":\"S\",\"html\":\"<p>H</p>\"}\n```"
	env, err := parseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, "S", env.Summary)
}

func TestParseEnvelopeRecoversTruncatedJSON(t *testing.T) {
	// truncated mid-way through the insights array
	raw := `{"title":"T","summary":"the quarter went well","html":"<p>body with \"quotes\"</p>","insights":["a", "b`
	env, err := parseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, "the quarter went well", env.Summary)
	assert.Equal(t, `<p>body with "quotes"</p>`, env.HTML)
	assert.Empty(t, env.Insights)
}

func TestParseEnvelopeRejectsProse(t *testing.T) {
	_, err := parseEnvelope("Here is your report: everything looks great.")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseEnvelopeRejectsEmptyObject(t *testing.T) {
	_, err := parseEnvelope(`{"insights":[]}`)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestReferencedChartIDs(t *testing.T) {
	html := `<div class="chart" data-chart-id="chart-02"></div><p>x</p>` +
		`<div class="chart" data-chart-id="chart-01"></div>`
	assert.Equal(t, []string{"chart-02", "chart-01"}, referencedChartIDs(html))
	assert.Empty(t, referencedChartIDs("<p>no charts</p>"))
}
