// Package server exposes report generation and browsing over HTTP. Generation
// responds with a server-sent event stream mirroring the orchestrator's
// progress events.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tabloom/tabloom/internal/dataset"
	"github.com/tabloom/tabloom/internal/store"
	"github.com/tabloom/tabloom/internal/synth"
)

const maxUploadBytes = 32 << 20

// Server wires the router to the orchestrator and the report store.
type Server struct {
	orch  *synth.Orchestrator
	store *store.FileStore
	log   zerolog.Logger
}

// New builds a Server.
func New(orch *synth.Orchestrator, st *store.FileStore, logger zerolog.Logger) *Server {
	return &Server{orch: orch, store: st, log: logger}
}

// Router builds the chi router with logging and recovery middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/reports", s.handleGenerate)
		r.Get("/reports", s.handleList)
		r.Get("/reports/{id}", s.handleGet)
		r.Delete("/reports/{id}", s.handleDelete)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// generateBody is the JSON request shape for generate and paste modes. Import
// mode uses multipart form uploads instead.
type generateBody struct {
	Mode   string `json:"mode"`
	Title  string `json:"title"`
	Idea   string `json:"idea"`
	Text   string `json:"text"`
	Intent string `json:"intent"`
	UseSQL bool   `json:"useSql"`
	Model  string `json:"model"`
}

// handleGenerate runs one generation request, streaming progress as SSE. The
// terminal event carries either the report id or the failure message; HTTP
// status is 200 either way once the stream has started.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(ev synth.Event) {
		b, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	}

	if _, err := s.orch.Run(r.Context(), req, emit); err != nil {
		// already reported on the stream as the terminal error event
		s.log.Warn().Err(err).Msg("generation request failed")
	}
}

func (s *Server) decodeRequest(r *http.Request) (synth.Request, error) {
	ct := r.Header.Get("Content-Type")
	if len(ct) >= 19 && ct[:19] == "multipart/form-data" {
		return s.decodeMultipart(r)
	}

	var body generateBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&body); err != nil {
		return synth.Request{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	mode := synth.Mode(body.Mode)
	if mode == "" {
		mode = synth.ModeGenerate
	}
	return synth.Request{
		Mode:   mode,
		Title:  body.Title,
		Idea:   body.Idea,
		Text:   body.Text,
		Intent: body.Intent,
		UseSQL: body.UseSQL,
		Model:  body.Model,
	}, nil
}

// decodeMultipart handles import mode: one or more dataset files plus form
// fields for the remaining options.
func (s *Server) decodeMultipart(r *http.Request) (synth.Request, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return synth.Request{}, fmt.Errorf("parse upload: %w", err)
	}
	req := synth.Request{
		Mode:   synth.ModeImport,
		Title:  r.FormValue("title"),
		Intent: r.FormValue("intent"),
		Model:  r.FormValue("model"),
		UseSQL: r.FormValue("sql") == "true",
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		return synth.Request{}, errors.New("no dataset files uploaded")
	}
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return synth.Request{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
		f.Close()
		if err != nil {
			return synth.Request{}, fmt.Errorf("read upload %s: %w", fh.Filename, err)
		}
		ds, err := dataset.Decode(data, fh.Filename)
		if err != nil {
			return synth.Request{}, err
		}
		req.Datasets = append(req.Datasets, ds)
	}
	return req, nil
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	reps, err := s.store.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// listing carries metadata only; the HTML body can be large
	type item struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		Summary   string    `json:"summary"`
		Score     int       `json:"score"`
		CreatedAt time.Time `json:"createdAt"`
	}
	items := make([]item, 0, len(reps))
	for _, rep := range reps {
		items = append(items, item{
			ID:        rep.ID,
			Title:     rep.Title,
			Summary:   rep.Summary,
			Score:     rep.Quality.Score,
			CreatedAt: rep.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": items})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rep, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	existed, err := s.store.Delete(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
