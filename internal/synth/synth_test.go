package synth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabloom/tabloom/internal/dataset"
	"github.com/tabloom/tabloom/internal/report"
)

// memStore records persisted reports.
type memStore struct {
	puts []*report.GeneratedReport
	err  error
}

func (m *memStore) Put(rep *report.GeneratedReport) error {
	if m.err != nil {
		return m.err
	}
	m.puts = append(m.puts, rep)
	return nil
}

// salesDataset is twelve rows over three regions and four months, so every
// pipeline stage has something to chew on.
func salesDataset() *dataset.Dataset {
	ds := &dataset.Dataset{Name: "sales", Fields: []string{"date", "region", "revenue"}}
	months := []string{"2024-01-01", "2024-02-01", "2024-03-01", "2024-04-01"}
	regions := []string{"North", "South", "West"}
	revenues := []string{"100", "200", "300", "400", "150", "250", "350", "450", "120", "220", "320", "420"}
	i := 0
	for _, m := range months {
		for _, r := range regions {
			ds.Rows = append(ds.Rows, dataset.Row{"date": m, "region": r, "revenue": revenues[i]})
			i++
		}
	}
	return ds
}

// scriptedGen answers the narrative call with the given envelope and every
// other call (outline, plan, queries) with an error, forcing fallbacks.
func scriptedGen(t *testing.T, env string) func(context.Context, string, string, string) (string, error) {
	t.Helper()
	return func(_ context.Context, system, _, _ string) (string, error) {
		if strings.Contains(system, "narrative") || strings.Contains(system, "reports") {
			return env, nil
		}
		return "", errors.New("not scripted")
	}
}

func testOrchestrator(gen func(context.Context, string, string, string) (string, error), st Store) *Orchestrator {
	return New(gen, st, zerolog.Nop(), Options{DefaultModel: "test-model"})
}

func validEnvelope(summary, html string) string {
	env := map[string]any{
		"title":           "Quarterly Sales",
		"summary":         summary,
		"html":            html,
		"insights":        []string{"North holds the largest share", "Revenue grows month over month", "The regional mix is stable"},
		"recommendations": []string{"Double down on the north", "Watch the west trend"},
	}
	b, _ := json.Marshal(env)
	return string(b)
}

func TestRunImportEndToEnd(t *testing.T) {
	st := &memStore{}
	// the narrative quotes only citable figures: 12 rows, total 3280
	env := validEnvelope(
		"Across 3280 in revenue, growth held through the quarter.",
		`<p>The dataset covers 3280 in revenue.</p><div class="chart" data-chart-id="chart-01"></div>`,
	)
	orch := testOrchestrator(scriptedGen(t, env), st)

	var events []Event
	rep, err := orch.Run(context.Background(), Request{
		Mode:     ModeImport,
		Datasets: []*dataset.Dataset{salesDataset()},
	}, func(ev Event) { events = append(events, ev) })
	require.NoError(t, err)
	require.NotNil(t, rep)

	assert.Equal(t, "Quarterly Sales", rep.Title)
	assert.Len(t, rep.ID, 12)
	assert.False(t, rep.CreatedAt.IsZero())
	require.Len(t, st.puts, 1)
	assert.Same(t, rep, st.puts[0])

	// referenced chart resolved against the candidate set
	require.Len(t, rep.Charts, 1)
	assert.Equal(t, "chart-01", rep.Charts[0].ID)

	// analysis metrics carried through when no content plan exists
	require.NotEmpty(t, rep.Metrics)
	assert.Equal(t, "total revenue", rep.Metrics[0].Label)
	assert.Equal(t, "3280", rep.Metrics[0].Value)

	// cited figures pass the gate without warnings
	assert.Empty(t, rep.Quality.Warnings)

	// progress events strictly increase and end with one complete
	last := -1
	for i, ev := range events {
		if ev.Type == EventProgress {
			assert.Greater(t, ev.Percent, last)
			last = ev.Percent
		} else {
			assert.Equal(t, EventComplete, ev.Type)
			assert.Equal(t, len(events)-1, i)
			assert.Equal(t, rep.ID, ev.ReportID)
		}
	}
	assert.Equal(t, EventComplete, events[len(events)-1].Type)
}

func TestRunFlagsFabricatedFigure(t *testing.T) {
	st := &memStore{}
	env := validEnvelope(
		"Revenue hit 999999 this quarter.",
		"<p>All good otherwise.</p>",
	)
	orch := testOrchestrator(scriptedGen(t, env), st)

	rep, err := orch.Run(context.Background(), Request{
		Mode:     ModeImport,
		Datasets: []*dataset.Dataset{salesDataset()},
	}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, rep.Quality.Warnings)
	found := false
	for _, w := range rep.Quality.Warnings {
		if strings.Contains(w, "999999") {
			found = true
		}
	}
	assert.True(t, found, "expected a warning for the fabricated figure, got %v", rep.Quality.Warnings)
	assert.Less(t, rep.Quality.Score, 100)
	// warnings never block persistence
	assert.Len(t, st.puts, 1)
}

func TestRunValidation(t *testing.T) {
	orch := testOrchestrator(scriptedGen(t, validEnvelope("s", "<p>h</p>")), &memStore{})

	cases := []Request{
		{Mode: ModeGenerate},
		{Mode: ModePaste, Text: "   "},
		{Mode: ModeImport},
		{Mode: "mystery"},
	}
	for _, req := range cases {
		var events []Event
		_, err := orch.Run(context.Background(), req, func(ev Event) { events = append(events, ev) })
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "mode %q", req.Mode)
		require.NotEmpty(t, events)
		assert.Equal(t, EventError, events[len(events)-1].Type)
	}
}

func TestRunGenerateModeHasNoCitations(t *testing.T) {
	var sawSystem string
	gen := func(_ context.Context, system, user, _ string) (string, error) {
		if strings.Contains(user, "[TASK]") {
			sawSystem = system
			return validEnvelope("A qualitative look at retention.", "<p>No numbers here.</p>"), nil
		}
		return "", errors.New("not scripted")
	}
	orch := testOrchestrator(gen, &memStore{})
	rep, err := orch.Run(context.Background(), Request{Mode: ModeGenerate, Idea: "retention strategy"}, nil)
	require.NoError(t, err)
	assert.Contains(t, sawSystem, "idea")
	assert.Empty(t, rep.Charts)
	assert.Empty(t, rep.Quality.Warnings)
}

func TestRunPersistFailureIsFatal(t *testing.T) {
	st := &memStore{err: errors.New("disk full")}
	orch := testOrchestrator(scriptedGen(t, validEnvelope("s", "<p>h</p>")), st)
	var events []Event
	_, err := orch.Run(context.Background(), Request{
		Mode:     ModeImport,
		Datasets: []*dataset.Dataset{salesDataset()},
	}, func(ev Event) { events = append(events, ev) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, EventError, events[len(events)-1].Type)
}

func TestRunEmptyCompletion(t *testing.T) {
	gen := func(context.Context, string, string, string) (string, error) { return "   ", nil }
	orch := testOrchestrator(gen, &memStore{})
	_, err := orch.Run(context.Background(), Request{Mode: ModeGenerate, Idea: "x"}, nil)
	assert.Error(t, err)
}

func TestBuildAnalysisFreezesCitations(t *testing.T) {
	analysis := BuildAnalysis([]*dataset.Dataset{salesDataset()})
	assert.True(t, analysis.Citations.Frozen())
	assert.NotEmpty(t, analysis.Citations.Rendered())
	assert.NotEmpty(t, analysis.Candidates)
	assert.Empty(t, analysis.CrossDimensions)
	assert.InDelta(t, 3280, analysis.FieldTotals["revenue"], 1e-9)
	assert.Contains(t, analysis.Summary, "sales: 12 rows, 3 fields")
}

func TestBuildAnalysisCrossDatasets(t *testing.T) {
	costs := &dataset.Dataset{Name: "costs", Fields: []string{"region", "cost"}}
	for _, r := range [][2]string{{"North", "40"}, {"South", "60"}} {
		costs.Rows = append(costs.Rows, dataset.Row{"region": r[0], "cost": r[1]})
	}
	analysis := BuildAnalysis([]*dataset.Dataset{salesDataset(), costs})
	assert.Equal(t, []string{"region"}, analysis.CrossDimensions)
	assert.True(t, analysis.HasCrossStats())
	assert.Contains(t, analysis.Summary, "[SHARED DIMENSIONS]")
}

func TestEmitterOrdering(t *testing.T) {
	var events []Event
	e := newEmitter(func(ev Event) { events = append(events, ev) })
	e.step("a", 10)
	e.step("b", 10) // not strictly increasing, dropped
	e.step("c", 30)
	e.terminal(Event{Type: EventComplete, Percent: 100})
	e.step("d", 99)                            // after terminal, dropped
	e.terminal(Event{Type: EventError})        // second terminal, dropped
	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].Label)
	assert.Equal(t, "c", events[1].Label)
	assert.Equal(t, EventComplete, events[2].Type)
}

func TestTopicNaming(t *testing.T) {
	assert.Equal(t, "grow the newsletter", topic(Request{Mode: ModeGenerate, Idea: "grow the newsletter"}))
	assert.Equal(t, "Pasted text analysis", topic(Request{Mode: ModePaste}))
	assert.Equal(t, "Data report: sales", topic(Request{Mode: ModeImport, Datasets: []*dataset.Dataset{{Name: "sales"}}}))
}
