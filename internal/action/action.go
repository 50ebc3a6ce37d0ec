// Package action implements the honeypot's per-request behaviour units and
// the pipeline that executes them. The action set is closed: handlers are
// selected through a registry built at startup, never by runtime symbol
// lookup.
package action

import (
	"log/slog"
	"net/http"

	"github.com/cmllr/CameraObscura/internal/config"
	"github.com/cmllr/CameraObscura/internal/eventlog"
	"github.com/cmllr/CameraObscura/internal/render"
	"github.com/cmllr/CameraObscura/internal/routes"
)

// Result tells the pipeline whether an action produced a terminal response.
type Result int

const (
	// Continue lets the next action in the route run.
	Continue Result = iota
	// Terminated means the action wrote the response; later actions are
	// skipped.
	Terminated
)

// ErrorFunc writes an HTTP error response. The server boundary installs a
// themed renderer; the zero value falls back to a bare status page.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, status int)

// Context is the per-request state shared by the actions of one pipeline
// run. It carries the matched route explicitly so no process-wide slot is
// involved under concurrent requests.
type Context struct {
	W http.ResponseWriter
	R *http.Request

	// RouteKey is the matched pattern string; servefile re-runs it to
	// extract capture groups from the request path.
	RouteKey string
	Route    *routes.Route

	// Token identifies this request across stored uploads and their
	// report.
	Token string

	Store    *config.Store
	Events   *eventlog.Logger
	Renderer *render.Engine
	Diag     *slog.Logger

	ErrorPage ErrorFunc
}

// Error writes an HTTP error for status, themed when the boundary installed
// a renderer.
func (c *Context) Error(status int) {
	if c.ErrorPage != nil {
		c.ErrorPage(c.W, c.R, status)
		return
	}
	http.Error(c.W, http.StatusText(status), status)
}

// Logger returns the diagnostic logger, defaulting to the process logger.
func (c *Context) Logger() *slog.Logger {
	if c.Diag != nil {
		return c.Diag
	}
	return slog.Default()
}

// Action is one named unit of per-request behaviour. A returned error is a
// configuration problem (broken deployment), never a request-level
// condition: those are written as responses instead.
type Action interface {
	Run(ctx *Context) (Result, error)
}

// Registry maps the fixed action vocabulary to handlers.
type Registry struct {
	actions map[string]Action
}

// NewRegistry builds the standard action set.
func NewRegistry() *Registry {
	serve := &ServeFile{}
	return &Registry{actions: map[string]Action{
		"authorize": &Authorize{serve: serve},
		"catchfile": &CatchFile{},
		"servefile": serve,
		"sleep":     NewSleep(),
		"video":     &Video{serve: serve},
	}}
}

// Lookup returns the handler for name.
func (r *Registry) Lookup(name string) (Action, bool) {
	action, ok := r.actions[name]
	return action, ok
}
