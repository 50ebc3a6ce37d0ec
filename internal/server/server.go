// Package server is the HTTP boundary: it matches requests against the
// route table, runs the action pipeline, and renders themed error pages.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cmllr/CameraObscura/internal/action"
	"github.com/cmllr/CameraObscura/internal/config"
	"github.com/cmllr/CameraObscura/internal/eventlog"
	"github.com/cmllr/CameraObscura/internal/render"
	"github.com/cmllr/CameraObscura/internal/routes"
)

// Config wires the boundary together.
type Config struct {
	Addr     string
	Store    *config.Store
	Table    *routes.Table
	Events   *eventlog.Logger
	Registry *action.Registry
	Logger   *slog.Logger
}

// Server owns the http.Server and the pipeline executor.
type Server struct {
	httpServer *http.Server
	store      *config.Store
	table      *routes.Table
	events     *eventlog.Logger
	pipeline   *action.Pipeline
	renderer   *render.Engine
	logger     *slog.Logger
}

// New builds the server. The decoy surface deliberately exposes nothing but
// the routed paths: no health endpoint, no metrics, no request ID header.
func New(cfg Config) (*Server, error) {
	if cfg.Table == nil {
		return nil, fmt.Errorf("route table is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = action.NewRegistry()
	}

	srv := &Server{
		store:    cfg.Store,
		table:    cfg.Table,
		events:   cfg.Events,
		pipeline: action.NewPipeline(registry),
		renderer: render.NewEngine(cfg.Store),
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.handle)

	srv.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// HTTPServer exposes the underlying http.Server for the runtime harness.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler exposes the request handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

var allowedMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodDelete: {},
}

// handle resolves the route and runs its pipeline. The matched route stays
// request-scoped: headers are applied here, per request, never via shared
// state.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if _, ok := allowedMethods[r.Method]; !ok {
		s.errorPage(w, r, http.StatusMethodNotAllowed)
		return
	}

	path := trimPath(r.URL.Path)
	route := s.table.Match(path, r.URL.RawQuery)

	s.events.LogRequest(eventlog.EventHTTPRequest,
		fmt.Sprintf("%s %s", r.Method, r.URL.String()), r, route == nil)

	if route == nil {
		s.errorPage(w, r, http.StatusNotFound)
		return
	}
	for key, value := range route.Headers {
		w.Header().Set(key, value)
	}

	ctx := &action.Context{
		W:         w,
		R:         r,
		RouteKey:  route.Key,
		Route:     route,
		Token:     uuid.NewString(),
		Store:     s.store,
		Events:    s.events,
		Renderer:  s.renderer,
		Diag:      s.logger,
		ErrorPage: s.errorPage,
	}

	terminated, err := s.pipeline.Execute(ctx)
	if err != nil {
		// A broken route configuration, not a hostile request. Loud
		// diagnostic so it surfaces during deployment testing.
		s.logger.Error("route pipeline failed", "route", route.Key, "error", err)
		s.errorPage(w, r, http.StatusInternalServerError)
		return
	}
	if !terminated {
		// Every action passed through; the response defaults to an
		// empty 200.
		return
	}
}

// errorPage renders templates/<theme>/<code>.html when present, then
// templates/<code>.html, then a bare status page.
func (s *Server) errorPage(w http.ResponseWriter, r *http.Request, status int) {
	theme := s.store.String("http", "template")
	var candidates []string
	if theme != "" {
		candidates = append(candidates, filepath.Join("templates", theme, fmt.Sprintf("%d.html", status)))
	}
	candidates = append(candidates, filepath.Join("templates", fmt.Sprintf("%d.html", status)))

	for _, candidate := range candidates {
		body, err := os.ReadFile(s.store.Absolute(candidate))
		if err != nil {
			continue
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write(body)
		return
	}
	http.Error(w, http.StatusText(status), status)
}

// trimPath strips the leading slash so paths compare against route keys the
// way they appear in the routes file.
func trimPath(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path[1:]
	}
	return path
}
