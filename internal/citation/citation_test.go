package citation_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabloom/tabloom/internal/citation"
	"github.com/tabloom/tabloom/internal/dataset"
	"github.com/tabloom/tabloom/internal/profile"
	"github.com/tabloom/tabloom/internal/relate"
)

func TestFormatValueMagnitudes(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{388000000, "3.88 hundred-million"},
		{100000000, "1 hundred-million"},
		{52500, "5.25 ten-thousand"},
		{10000, "1 ten-thousand"},
		{9999, "9999"},
		{1234.5, "1234.5"},
		{0, "0"},
		{-250000, "-25 ten-thousand"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, citation.FormatValue(c.in), "input %v", c.in)
	}
}

func TestBuildRendersFacts(t *testing.T) {
	ds := &dataset.Dataset{
		Name:   "sales",
		Fields: []string{"date", "region", "revenue"},
		Rows: []dataset.Row{
			{"date": "2024-01-01", "region": "North", "revenue": "120000"},
			{"date": "2024-02-01", "region": "South", "revenue": "80000"},
		},
	}
	profiled := []profile.ProfiledDataset{profile.Profile(ds)}
	stats := []relate.CrossDatasetStat{{
		Dimension: "region", Metric: "revenue", DatasetName: "sales",
		Groups: []relate.GroupSum{{Key: "North", Value: 120000}},
		Total:  200000, TopShare: 0.6,
	}}

	l := citation.Build(profiled, stats)
	rendered := strings.Join(l.Rendered(), "\n")
	assert.Contains(t, rendered, "sales: 2 rows")
	assert.Contains(t, rendered, "total revenue (sales): 20 ten-thousand")
	assert.Contains(t, rendered, "mean revenue (sales): 10 ten-thousand")
	assert.Contains(t, rendered, "2 valid dates from 2024-01-01 to 2024-02-01")
	assert.Contains(t, rendered, `most frequent "North"`)
	assert.Contains(t, rendered, "total revenue by region across files: 20 ten-thousand")
	assert.Contains(t, rendered, `top region "North" holds 60.0% of revenue`)
}

func TestRenderedCapped(t *testing.T) {
	l := &citation.List{}
	for i := 0; i < citation.PromptCap+10; i++ {
		l.Add("fact", float64(i))
	}
	assert.Len(t, l.Rendered(), citation.PromptCap)
	assert.Equal(t, citation.PromptCap+10, l.Len())
}

func TestFreezeSealsList(t *testing.T) {
	l := &citation.List{}
	l.Add("a", 1)
	l.Freeze()
	require.True(t, l.Frozen())
	assert.Panics(t, func() { l.Add("b", 2) })
}
