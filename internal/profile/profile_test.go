package profile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabloom/tabloom/internal/dataset"
	"github.com/tabloom/tabloom/internal/profile"
)

func makeDataset(fields []string, rows ...[]string) *dataset.Dataset {
	ds := &dataset.Dataset{Name: "test", Fields: fields}
	for _, r := range rows {
		row := make(dataset.Row, len(fields))
		for i, name := range fields {
			row[name] = r[i]
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

func TestProfileClassification(t *testing.T) {
	ds := makeDataset(
		[]string{"date", "region", "revenue"},
		[]string{"2024-01-01", "North", "1,200"},
		[]string{"2024-02-01", "South", "800"},
		[]string{"2024-03-01", "North", "1000.5"},
	)
	p := profile.Profile(ds)
	require.Len(t, p.Fields, 3)

	date := p.Field("date")
	require.NotNil(t, date)
	assert.Equal(t, dataset.FieldTemporal, date.Type)
	assert.Equal(t, 3, date.Temporal.Valid)
	assert.Equal(t, "2024-01-01", date.Temporal.Earliest.Format("2006-01-02"))
	assert.Equal(t, "2024-03-01", date.Temporal.Latest.Format("2006-01-02"))

	region := p.Field("region")
	require.NotNil(t, region)
	assert.Equal(t, dataset.FieldCategorical, region.Type)
	assert.Equal(t, 2, region.Categorical.Distinct)
	assert.Equal(t, "North", region.Categorical.Top[0].Value)
	assert.Equal(t, 2, region.Categorical.Top[0].Count)

	revenue := p.Field("revenue")
	require.NotNil(t, revenue)
	assert.Equal(t, dataset.FieldNumeric, revenue.Type)
	assert.InDelta(t, 3000.5, revenue.Numeric.Sum, 1e-9)
	assert.InDelta(t, 800, revenue.Numeric.Min, 1e-9)
	assert.InDelta(t, 1200, revenue.Numeric.Max, 1e-9)

	assert.Equal(t, []string{"revenue"}, p.NumericFields())
}

func TestProfileSingleNonNumericValueDemotes(t *testing.T) {
	// one unparseable cell makes the whole field categorical
	ds := makeDataset([]string{"v"}, []string{"1"}, []string{"2"}, []string{"n/a"})
	p := profile.Profile(ds)
	assert.Equal(t, dataset.FieldCategorical, p.Fields[0].Type)
}

func TestProfileEmptyDataset(t *testing.T) {
	ds := &dataset.Dataset{Name: "empty", Fields: []string{"a", "b"}}
	p := profile.Profile(ds)
	require.Len(t, p.Fields, 2)
	for _, f := range p.Fields {
		assert.Equal(t, dataset.FieldCategorical, f.Type)
		assert.Equal(t, 0, f.Categorical.Distinct)
	}
}

func TestProfileDeterministic(t *testing.T) {
	ds := makeDataset(
		[]string{"k"},
		[]string{"a"}, []string{"b"}, []string{"b"}, []string{"c"}, []string{"c"},
	)
	first := profile.Profile(ds)
	second := profile.Profile(ds)
	assert.Equal(t, first.Fields, second.Fields)
	// ties broken by value ascending
	assert.Equal(t, "b", first.Fields[0].Categorical.Top[0].Value)
	assert.Equal(t, "c", first.Fields[0].Categorical.Top[1].Value)
	assert.Equal(t, "a", first.Fields[0].Categorical.Top[2].Value)
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"42", 42, true},
		{"1,234.5", 1234.5, true},
		{"85%", 85, true},
		{" 7 ", 7, true},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, c := range cases {
		got, ok := profile.ParseNumber(c.in)
		assert.Equal(t, c.ok, ok, "input %q", c.in)
		if c.ok {
			assert.InDelta(t, c.want, got, 1e-9, "input %q", c.in)
		}
	}
}

func TestParseDateLayouts(t *testing.T) {
	for _, in := range []string{"2024-05-01", "2024/05/01", "2024-05", "2024-05-01 10:30"} {
		_, ok := profile.ParseDate(in)
		assert.True(t, ok, "input %q", in)
	}
	_, ok := profile.ParseDate("May first")
	assert.False(t, ok)
}
