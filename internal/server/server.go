// Package server is the local preview surface: a small UI over stored
// catalogs, a JSON API, on-demand analysis and Prometheus metrics.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/apiscout/internal/config"
	"github.com/yourorg/apiscout/internal/loader"
	"github.com/yourorg/apiscout/internal/logging"
	"github.com/yourorg/apiscout/internal/metrics"
	"github.com/yourorg/apiscout/internal/pipeline"
	"github.com/yourorg/apiscout/internal/render"
	"github.com/yourorg/apiscout/internal/store"
	"github.com/yourorg/apiscout/pkg/types"
)

var (
	//go:embed ui.html
	uiHTML string

	uiTemplate = template.Must(template.New("ui").Parse(uiHTML))
)

// Server wraps the preview UI and API handlers.
type Server struct {
	cfg     *config.Config
	store   store.Store
	log     logrus.FieldLogger
	metrics *metrics.Collector
	mux     *http.ServeMux
}

type uiData struct {
	SessionID string
}

// New constructs a new Server with routes registered. A nil logger
// discards output; a nil collector gets a fresh one.
func New(cfg *config.Config, st store.Store, log logrus.FieldLogger, m *metrics.Collector) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if st == nil {
		return nil, errors.New("store is nil")
	}
	if log == nil {
		log = logging.Discard()
	}
	if m == nil {
		m = metrics.New()
	}

	srv := &Server{
		cfg:     cfg,
		store:   st,
		log:     log,
		metrics: m,
		mux:     http.NewServeMux(),
	}
	srv.registerRoutes()
	return srv, nil
}

// Handler returns the http handler.
func (s *Server) Handler() http.Handler {
	return s.instrument(s.mux)
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- hs.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	// Static file server for rendered outputs.
	s.mux.Handle("/docs/", http.StripPrefix("/docs/", http.FileServer(http.Dir(s.cfg.Output.Dir))))

	// UI routes.
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/session/", s.handleSessionPage)

	// API routes.
	s.mux.HandleFunc("/api/sessions", s.handleSessions)
	s.mux.HandleFunc("/api/sessions/", s.handleSessionRoutes)
	s.mux.HandleFunc("/api/analyze", s.handleAnalyze)
	s.mux.Handle("/metrics", s.metrics.Handler())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.renderUI(w, "")
}

func (s *Server) handleSessionPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, tail, ok := splitPath(r.URL.Path, "/session/")
	if !ok || id == "" || tail != "" {
		http.NotFound(w, r)
		return
	}
	s.renderUI(w, id)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessions, err := s.store.ListSessions()
	if err != nil {
		s.serverError(w, err)
		return
	}
	if sessions == nil {
		sessions = []types.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	id, tail, ok := splitPath(r.URL.Path, "/api/sessions/")
	if !ok || id == "" {
		http.NotFound(w, r)
		return
	}
	switch tail {
	case "":
		s.handleSessionDetail(w, r, id)
	case "records":
		s.handleSessionRecords(w, r, id)
	case "analyze":
		s.handleReanalyze(w, r, id)
	case "openapi", "markdown", "text":
		s.handleSessionDoc(w, r, id, tail)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodDelete:
		if _, err := s.store.GetSession(id); err != nil {
			s.storeError(w, err)
			return
		}
		if err := s.store.DeleteSession(id); err != nil {
			s.serverError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, err := s.store.GetSession(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	catalog, err := s.store.GetCatalog(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	resp := struct {
		Session *types.Session `json:"session"`
		Catalog *types.Catalog `json:"catalog"`
	}{
		Session: sess,
		Catalog: catalog,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSessionRecords(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.store.GetSession(id); err != nil {
		s.storeError(w, err)
		return
	}
	records, err := s.store.GetRecords(id)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleSessionDoc(w http.ResponseWriter, r *http.Request, id, format string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	catalog, err := s.store.GetCatalog(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	switch format {
	case "openapi":
		data, err := render.OpenAPI(catalog)
		if err != nil {
			s.serverError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(data)
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(render.Markdown(catalog)))
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_ = render.Text(w, catalog)
	}
}

func (s *Server) handleReanalyze(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	res, err := pipeline.Reanalyze(id, s.pipelineOptions(s.store))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": res.Session, "catalog": res.Catalog})
}

// handleAnalyze accepts a capture artifact body and answers with its
// catalog. With save=1 the records and catalog are stored as a session.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	setCORS(w, s.cfg.Server.CORSOrigin)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body := http.MaxBytesReader(w, r.Body, int64(s.cfg.Server.MaxBodyMB)<<20)
	records, stats, err := loader.Decode(body, s.log)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "capture too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "read capture: "+err.Error(), http.StatusBadRequest)
		return
	}

	var st store.Store
	if save, _ := strconv.ParseBool(r.URL.Query().Get("save")); save {
		st = s.store
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "upload"
	}
	start := time.Now()
	res, err := pipeline.Run(source, records, stats, s.pipelineOptions(st))
	s.metrics.ObserveRun(routeCount(res), ambiguousCount(res), time.Since(start), err)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"load":    res.Load,
		"filter":  res.Filter,
		"session": res.Session,
		"catalog": res.Catalog,
	})
}

func (s *Server) pipelineOptions(st store.Store) pipeline.Options {
	return pipeline.Options{Config: s.cfg, Logger: s.log, Metrics: s.metrics, Store: st}
}

func routeCount(res *pipeline.Result) int {
	if res == nil {
		return 0
	}
	return len(res.Catalog.Routes)
}

func ambiguousCount(res *pipeline.Result) int {
	n := 0
	if res == nil {
		return n
	}
	for _, r := range res.Catalog.Routes {
		if len(r.AmbiguousWith) > 0 {
			n++
		}
	}
	return n
}

func (s *Server) renderUI(w http.ResponseWriter, sessionID string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = uiTemplate.Execute(w, uiData{SessionID: sessionID})
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	s.serverError(w, err)
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.log.WithError(err).Error("request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func splitPath(fullPath, prefix string) (string, string, bool) {
	if !strings.HasPrefix(fullPath, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(fullPath, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	tail := ""
	if len(parts) > 1 {
		tail = strings.Join(parts[1:], "/")
	}
	return id, tail, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func setCORS(w http.ResponseWriter, origin string) {
	if origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}
