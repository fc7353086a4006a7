// Package synth drives report generation: a per-request state machine from
// validation through analysis, planning, one narrative model call, the
// quality gate, and persistence, emitting ordered progress events along the
// way. The language model is advisory throughout — every response is parsed
// defensively and verified after the fact.
package synth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tabloom/tabloom/internal/ai"
	"github.com/tabloom/tabloom/internal/chart"
	"github.com/tabloom/tabloom/internal/dataset"
	"github.com/tabloom/tabloom/internal/gate"
	"github.com/tabloom/tabloom/internal/outline"
	"github.com/tabloom/tabloom/internal/plan"
	"github.com/tabloom/tabloom/internal/report"
	"github.com/tabloom/tabloom/internal/sqlpath"
	"github.com/tabloom/tabloom/internal/utils"
)

// Mode selects the input shape of a generation request.
type Mode string

const (
	ModeGenerate Mode = "generate" // free-text idea only
	ModePaste    Mode = "paste"    // arbitrary pasted text
	ModeImport   Mode = "import"   // one or more datasets, optional intent
)

// Request is one report-generation request. Datasets are owned by the caller
// for the duration of the request.
type Request struct {
	Mode     Mode
	Title    string
	Idea     string
	Text     string
	Intent   string
	Datasets []*dataset.Dataset
	// Outline overrides the model-built outline when set.
	Outline *outline.Outline
	// UseSQL selects the SQL analysis path instead of the profiler path.
	UseSQL bool
	// Model overrides the orchestrator default model id.
	Model string
}

// Stage labels for progress events, in pipeline order.
const (
	StageValidating     = "validating"
	StageProfiling      = "profiling"
	StagePlanning       = "planning"
	StageGenerating     = "generating"
	StagePostProcessing = "post-processing"
	StagePersisting     = "persisting"
	StageComplete       = "complete"
	StageFailed         = "failed"
)

// EventType discriminates stream events.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one entry in the per-request progress stream. A stream is
// terminated by exactly one complete or error event.
type Event struct {
	Type     EventType `json:"type"`
	Label    string    `json:"label,omitempty"`
	Percent  int       `json:"percent,omitempty"`
	ReportID string    `json:"reportId,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// EmitFunc receives progress events. May be nil.
type EmitFunc func(Event)

// ValidationError reports a request missing required fields for its mode.
// The message is user-facing.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// Store is the persistence collaborator.
type Store interface {
	Put(rep *report.GeneratedReport) error
}

// Options configures an Orchestrator.
type Options struct {
	// DefaultModel is used when the request names none.
	DefaultModel string
}

// Orchestrator runs generation requests. One instance may serve many
// requests; each Run call is an independent single-threaded pipeline with no
// shared mutable state.
type Orchestrator struct {
	gen   ai.GenerateFunc
	store Store
	log   zerolog.Logger
	opts  Options
}

// New builds an orchestrator. The GenerateFunc is injected; the orchestrator
// never constructs network clients.
func New(gen ai.GenerateFunc, store Store, logger zerolog.Logger, opts Options) *Orchestrator {
	return &Orchestrator{gen: gen, store: store, log: logger, opts: opts}
}

// Run executes one request. Progress events are emitted in strictly
// increasing percent order; a fatal error emits a single error event and
// persists nothing.
func (o *Orchestrator) Run(ctx context.Context, req Request, emit EmitFunc) (*report.GeneratedReport, error) {
	progress := newEmitter(emit)
	fail := func(err error) (*report.GeneratedReport, error) {
		o.log.Error().Err(err).Str("stage", StageFailed).Msg("generation failed")
		progress.terminal(Event{Type: EventError, Message: err.Error()})
		return nil, err
	}

	progress.step(StageValidating, 5)
	if err := validate(req); err != nil {
		return fail(err)
	}
	model := req.Model
	if model == "" {
		model = o.opts.DefaultModel
	}

	progress.step(StageProfiling, 25)
	analysis, err := o.analyze(ctx, req, model)
	if err != nil {
		return fail(err)
	}
	if analysis.Citations != nil && !analysis.Citations.Frozen() {
		analysis.Citations.Freeze()
	}

	progress.step(StagePlanning, 40)
	ol := o.resolveOutline(ctx, req, model, analysis)
	contentPlan := o.planContent(ctx, req, model, ol, analysis)

	progress.step(StageGenerating, 60)
	env, err := o.generateNarrative(ctx, req, model, ol, analysis, contentPlan)
	if err != nil {
		return fail(err)
	}

	progress.step(StagePostProcessing, 80)
	rep := o.assemble(req, env, analysis, contentPlan)
	rep.Quality = gate.Inspect(rep, analysis.Citations, analysis.CrossDimensions, analysis.FieldTotals)
	o.log.Info().Int("score", rep.Quality.Score).Int("warnings", len(rep.Quality.Warnings)).Msg("quality gate")

	progress.step(StagePersisting, 90)
	rep.ID = newReportID()
	rep.CreatedAt = time.Now().UTC()
	if o.store != nil {
		if err := o.store.Put(rep); err != nil {
			return fail(fmt.Errorf("persist report: %w", err))
		}
	}

	progress.terminal(Event{Type: EventComplete, Label: StageComplete, Percent: 100, ReportID: rep.ID})
	return rep, nil
}

func validate(req Request) error {
	switch req.Mode {
	case ModeGenerate:
		if strings.TrimSpace(req.Idea) == "" {
			return &ValidationError{Msg: "an idea is required for generate mode"}
		}
	case ModePaste:
		if strings.TrimSpace(req.Text) == "" {
			return &ValidationError{Msg: "pasted text is required for paste mode"}
		}
	case ModeImport:
		if len(req.Datasets) == 0 {
			return &ValidationError{Msg: "at least one dataset is required for import mode"}
		}
	default:
		return &ValidationError{Msg: fmt.Sprintf("unknown input mode %q", req.Mode)}
	}
	return nil
}

func (o *Orchestrator) analyze(ctx context.Context, req Request, model string) (*report.AnalysisResult, error) {
	switch req.Mode {
	case ModeImport:
		if req.UseSQL {
			profiled := profileAll(req.Datasets)
			return sqlpath.Analyze(ctx, req.Datasets, profiled, o.gen, model)
		}
		return BuildAnalysis(req.Datasets), nil
	case ModePaste:
		return textOnlyAnalysis(utils.TruncateToTokenLimit(req.Text, 2000)), nil
	default:
		return textOnlyAnalysis(req.Idea), nil
	}
}

func (o *Orchestrator) resolveOutline(ctx context.Context, req Request, model string, analysis *report.AnalysisResult) outline.Outline {
	var ol outline.Outline
	if req.Outline != nil {
		ol = *req.Outline
	} else {
		ol = outline.Build(ctx, o.gen, model, topic(req), analysis.HasCrossStats())
	}
	if analysis.HasCrossStats() {
		if ol.EnsureCrossSection(analysis.CrossDimensions) {
			o.log.Debug().Msg("injected cross-file insight section into outline")
		}
	}
	if len(ol.DuplicateTypes()) > 0 {
		collapsed, err := outline.Collapse(ctx, o.gen, model, ol)
		if err != nil {
			// duplicates are left as-is; collapsing is best-effort
			o.log.Warn().Err(err).Msg("outline collapse failed")
		} else {
			ol = collapsed
		}
	}
	return ol
}

func (o *Orchestrator) planContent(ctx context.Context, req Request, model string, ol outline.Outline, analysis *report.AnalysisResult) *plan.ContentPlan {
	if strings.TrimSpace(req.Intent) == "" || analysis.Citations == nil || analysis.Citations.Len() == 0 {
		return nil
	}
	p, err := plan.Build(ctx, o.gen, model, req.Intent, ol, analysis.Citations.Rendered(), analysis.Candidates)
	if err != nil {
		// degrade to single-phase synthesis without the intent filter
		o.log.Warn().Err(err).Msg("content planning failed; falling back")
		return nil
	}
	return p
}

func (o *Orchestrator) generateNarrative(ctx context.Context, req Request, model string, ol outline.Outline, analysis *report.AnalysisResult, contentPlan *plan.ContentPlan) (*envelope, error) {
	system := systemPrompt(req.Mode)
	user := userPrompt(req, ol, analysis, contentPlan)
	o.log.Debug().Int("prompt_tokens", utils.CountTokens(user)).Str("model", model).Msg("narrative call")

	raw, err := o.gen(ctx, system, user, model)
	if err != nil {
		return nil, fmt.Errorf("narrative generation: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, ai.ErrEmptyCompletion
	}
	return parseEnvelope(raw)
}

func (o *Orchestrator) assemble(req Request, env *envelope, analysis *report.AnalysisResult, contentPlan *plan.ContentPlan) *report.GeneratedReport {
	rep := &report.GeneratedReport{
		Title:           req.Title,
		Summary:         env.Summary,
		HTML:            env.HTML,
		Insights:        env.Insights,
		Recommendations: env.Recommendations,
	}
	if rep.Title == "" {
		rep.Title = env.Title
	}
	if rep.Title == "" {
		rep.Title = topic(req)
	}

	if contentPlan != nil && len(contentPlan.Metrics) > 0 {
		rep.Metrics = contentPlan.Metrics
	} else {
		rep.Metrics = analysis.Metrics
	}

	// the narrative references charts only by id; resolve against the
	// candidate index and drop anything outside the allow-list
	known := chart.ByID(analysis.Candidates)
	seen := make(map[string]bool)
	for _, id := range referencedChartIDs(env.HTML) {
		if c, ok := known[id]; ok && !seen[id] {
			seen[id] = true
			rep.Charts = append(rep.Charts, c)
		}
	}
	return rep
}

func topic(req Request) string {
	switch req.Mode {
	case ModeGenerate:
		return req.Idea
	case ModePaste:
		return "Pasted text analysis"
	default:
		names := make([]string, 0, len(req.Datasets))
		for _, ds := range req.Datasets {
			names = append(names, ds.Name)
		}
		return "Data report: " + strings.Join(names, ", ")
	}
}

func newReportID() string {
	// opaque short id; collisions are practically impossible at this scale
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// emitter enforces the ordering guarantee: percents strictly increase and
// exactly one terminal event is delivered.
type emitter struct {
	emit EmitFunc
	last int
	done bool
}

func newEmitter(emit EmitFunc) *emitter {
	return &emitter{emit: emit, last: -1}
}

func (e *emitter) step(label string, percent int) {
	if e.emit == nil || e.done || percent <= e.last {
		return
	}
	e.last = percent
	e.emit(Event{Type: EventProgress, Label: label, Percent: percent})
}

func (e *emitter) terminal(ev Event) {
	if e.emit == nil || e.done {
		return
	}
	e.done = true
	e.emit(ev)
}
