// Package sqlpath is the alternative analysis path: datasets are loaded into
// an ephemeral in-memory SQLite store and the model emits read-only queries
// whose results replace the profiler/chart pipeline's output. The store lives
// for one request and is closed before returning.
package sqlpath

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/tabloom/tabloom/internal/ai"
	"github.com/tabloom/tabloom/internal/chart"
	"github.com/tabloom/tabloom/internal/citation"
	"github.com/tabloom/tabloom/internal/dataset"
	"github.com/tabloom/tabloom/internal/profile"
	"github.com/tabloom/tabloom/internal/report"
	"github.com/tabloom/tabloom/internal/utils"
)

// Placeholder stands in for a metric whose query failed. The batch never
// aborts on a single bad query.
const Placeholder = "n/a"

// MetricQuery is one model-emitted metric request.
type MetricQuery struct {
	Label string `json:"label"`
	SQL   string `json:"sql"`
}

// ChartQuery is one model-emitted chart request. The first selected column is
// the label, the second the value.
type ChartQuery struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ChartType string `json:"chartType"`
	SQL       string `json:"sql"`
}

type queryPlan struct {
	Metrics []MetricQuery `json:"metrics"`
	Charts  []ChartQuery  `json:"charts"`
}

// Analyze loads the datasets into an in-memory store, asks the model for
// metric and chart queries, executes each in isolation, and shapes the
// results like the profiler path so downstream stages cannot tell them apart.
func Analyze(ctx context.Context, datasets []*dataset.Dataset, profiled []profile.ProfiledDataset, gen ai.GenerateFunc, model string) (*report.AnalysisResult, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if err := loadTables(ctx, db, profiled); err != nil {
		return nil, err
	}

	schema := describeSchema(profiled)
	plan, err := requestQueries(ctx, gen, model, schema)
	if err != nil {
		return nil, err
	}

	res := &report.AnalysisResult{
		Summary:     schema,
		Citations:   &citation.List{},
		FieldTotals: fieldTotals(profiled),
	}

	for _, mq := range plan.Metrics {
		if mq.Label == "" {
			continue
		}
		value, ok := runMetric(ctx, db, mq.SQL)
		if !ok {
			res.Metrics = append(res.Metrics, report.MetricItem{Label: mq.Label, Value: Placeholder})
			continue
		}
		rendered := citation.FormatValue(value)
		res.Metrics = append(res.Metrics, report.MetricItem{Label: mq.Label, Value: rendered})
		res.Citations.Add(fmt.Sprintf("%s: %s", mq.Label, rendered), value)
	}

	for i, cq := range plan.Charts {
		points, ok := runChart(ctx, db, cq.SQL)
		if !ok || len(points) == 0 {
			continue // failed chart queries are omitted, not fatal
		}
		typ := chart.Bar
		if strings.EqualFold(cq.ChartType, string(chart.Line)) {
			typ = chart.Line
		}
		id := cq.ID
		if id == "" {
			id = fmt.Sprintf("chart-%02d", i+1)
		}
		res.Candidates = append(res.Candidates, chart.Candidate{
			ID:     id,
			Title:  cq.Title,
			Type:   typ,
			Points: points,
			Source: "sql:" + id,
			Score:  1,
		})
	}

	res.Citations.Freeze()
	return res, nil
}

// ValidateQuery enforces the read-only contract: a single statement starting
// with a selection keyword and containing no statement separator.
func ValidateQuery(q string) error {
	trimmed := strings.TrimSpace(q)
	if trimmed == "" {
		return fmt.Errorf("empty query")
	}
	if strings.ContainsRune(trimmed, ';') {
		return fmt.Errorf("statement separator not allowed")
	}
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return fmt.Errorf("only read-only selection queries allowed")
	}
	return nil
}

// TableName returns the deterministic table name for a dataset position.
func TableName(i int) string { return fmt.Sprintf("t%d", i+1) }

func loadTables(ctx context.Context, db *sql.DB, profiled []profile.ProfiledDataset) error {
	for i, p := range profiled {
		table := TableName(i)
		cols := make([]string, len(p.Fields))
		for j, f := range p.Fields {
			typ := "TEXT"
			if f.Type == dataset.FieldNumeric {
				typ = "REAL"
			}
			cols[j] = fmt.Sprintf("%s %s", quoteIdent(f.Name), typ)
		}
		ddl := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(cols, ", "))
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}

		if len(p.Fields) == 0 {
			continue
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(p.Fields)), ", ")
		names := make([]string, len(p.Fields))
		for j, f := range p.Fields {
			names[j] = quoteIdent(f.Name)
		}
		insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), placeholders)
		stmt, err := db.PrepareContext(ctx, insert)
		if err != nil {
			return fmt.Errorf("prepare insert %s: %w", table, err)
		}
		for _, row := range p.Dataset.Rows {
			args := make([]any, len(p.Fields))
			for j, f := range p.Fields {
				raw := row[f.Name]
				if f.Type == dataset.FieldNumeric {
					if x, ok := profile.ParseNumber(raw); ok {
						args[j] = x
					} else {
						args[j] = nil
					}
				} else if raw == "" {
					args[j] = nil
				} else {
					args[j] = raw
				}
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				stmt.Close()
				return fmt.Errorf("insert into %s: %w", table, err)
			}
		}
		stmt.Close()
	}
	return nil
}

func requestQueries(ctx context.Context, gen ai.GenerateFunc, model, schema string) (*queryPlan, error) {
	system := "You write SQLite SELECT queries for report metrics and charts. " +
		"Each query must be a single read-only statement with no semicolons. " +
		"Chart queries select a label column then a numeric column. " +
		"Reply with a JSON object {metrics:[{label,sql}], charts:[{id,title,chartType,sql}]}. " +
		"chartType is bar or line. No prose."
	raw, err := gen(ctx, system, schema, model)
	if err != nil {
		return nil, fmt.Errorf("query plan: %w", err)
	}
	var plan queryPlan
	if err := json.Unmarshal([]byte(utils.StripCodeFences(raw)), &plan); err != nil {
		return nil, fmt.Errorf("query plan: unparseable response: %w", err)
	}
	if len(plan.Metrics) == 0 && len(plan.Charts) == 0 {
		return nil, fmt.Errorf("query plan: response contained no queries")
	}
	return &plan, nil
}

func runMetric(ctx context.Context, db *sql.DB, q string) (float64, bool) {
	if err := ValidateQuery(q); err != nil {
		return 0, false
	}
	var v sql.NullFloat64
	if err := db.QueryRowContext(ctx, q).Scan(&v); err != nil || !v.Valid {
		return 0, false
	}
	return v.Float64, true
}

func runChart(ctx context.Context, db *sql.DB, q string) ([]chart.Point, bool) {
	if err := ValidateQuery(q); err != nil {
		return nil, false
	}
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, false
	}
	defer rows.Close()

	var points []chart.Point
	for rows.Next() {
		var label sql.NullString
		var value sql.NullFloat64
		if err := rows.Scan(&label, &value); err != nil {
			return nil, false
		}
		if !label.Valid || !value.Valid {
			continue
		}
		points = append(points, chart.Point{Label: label.String, Value: value.Float64})
	}
	if err := rows.Err(); err != nil {
		return nil, false
	}
	return points, true
}

func describeSchema(profiled []profile.ProfiledDataset) string {
	var b strings.Builder
	b.WriteString("[TABLES]\n")
	for i, p := range profiled {
		fmt.Fprintf(&b, "%s (%s, %d rows):\n", TableName(i), p.Dataset.Name, len(p.Dataset.Rows))
		for _, f := range p.Fields {
			fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Type)
		}
	}
	return b.String()
}

// quoteIdent defends column names against quoting issues; field names come
// from file headers and are not trusted.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func fieldTotals(profiled []profile.ProfiledDataset) map[string]float64 {
	totals := make(map[string]float64)
	for _, p := range profiled {
		for _, f := range p.Fields {
			if f.Type == dataset.FieldNumeric && f.Numeric != nil {
				totals[strings.ToLower(f.Name)] = f.Numeric.Sum
			}
		}
	}
	return totals
}
