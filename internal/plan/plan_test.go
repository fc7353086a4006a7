package plan_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabloom/tabloom/internal/chart"
	"github.com/tabloom/tabloom/internal/outline"
	"github.com/tabloom/tabloom/internal/plan"
)

func TestBuildFiltersUnknownChartIDs(t *testing.T) {
	response := `{"summary":"Revenue is concentrated in the north",
		"metrics":[{"label":"total revenue","value":"20 ten-thousand"}],
		"chartIds":["chart-01","chart-99"],
		"insights":["North leads"],
		"recommendations":["Invest north"]}`
	var gotUser string
	gen := func(_ context.Context, _, user, _ string) (string, error) {
		gotUser = user
		return response, nil
	}
	candidates := []chart.Candidate{{ID: "chart-01", Title: "revenue by region", Type: chart.Bar}}

	p, err := plan.Build(context.Background(), gen, "m", "focus on revenue", outline.Default(false),
		[]string{"total revenue (sales): 20 ten-thousand"}, candidates)
	require.NoError(t, err)
	assert.Equal(t, []string{"chart-01"}, p.ChartIDs)
	assert.Equal(t, "20 ten-thousand", p.Metrics[0].Value)

	// the prompt carries the goal and citations, and chart candidates by id only
	assert.Contains(t, gotUser, "focus on revenue")
	assert.Contains(t, gotUser, "total revenue (sales): 20 ten-thousand")
	assert.Contains(t, gotUser, "chart-01: revenue by region (bar)")
}

func TestBuildErrorsOnModelFailure(t *testing.T) {
	gen := func(context.Context, string, string, string) (string, error) {
		return "", errors.New("boom")
	}
	_, err := plan.Build(context.Background(), gen, "m", "goal", outline.Default(false), nil, nil)
	assert.Error(t, err)
}

func TestBuildErrorsOnEmptyPlan(t *testing.T) {
	gen := func(context.Context, string, string, string) (string, error) {
		return `{"chartIds":[]}`, nil
	}
	_, err := plan.Build(context.Background(), gen, "m", "goal", outline.Default(false), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing expected keys")
}

func TestPromptText(t *testing.T) {
	p := &plan.ContentPlan{
		Summary:  "short",
		ChartIDs: []string{"chart-01", "chart-02"},
		Insights: []string{"a", "b"},
	}
	text := p.PromptText()
	assert.True(t, strings.HasPrefix(text, "[CONTENT PLAN]"))
	assert.Contains(t, text, "Charts to reference: chart-01, chart-02")
	assert.Contains(t, text, "- a\n- b\n")
}
