// Package dataset defines the tabular input model shared by every analysis
// stage: ordered field names and loosely-typed rows. Decoding keeps cell
// values as raw strings; type coercion happens later in the profiler.
package dataset

// FieldType classifies a field after profiling.
type FieldType string

const (
	FieldNumeric     FieldType = "numeric"
	FieldTemporal    FieldType = "temporal"
	FieldCategorical FieldType = "categorical"
)

// Row maps field name to the raw cell value. Empty string means null.
type Row map[string]string

// Dataset is one decoded table. Fields preserves header order. A Dataset is
// treated as immutable once profiled and lives for a single request.
type Dataset struct {
	Name   string
	Fields []string
	Rows   []Row
}

// Column returns the non-empty values of one field in row order.
func (d *Dataset) Column(field string) []string {
	out := make([]string, 0, len(d.Rows))
	for _, r := range d.Rows {
		if v, ok := r[field]; ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

// HasField reports whether the dataset declares the given header.
func (d *Dataset) HasField(field string) bool {
	for _, f := range d.Fields {
		if f == field {
			return true
		}
	}
	return false
}
