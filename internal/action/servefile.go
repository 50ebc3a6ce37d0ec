package action

import (
	"fmt"
	"math/rand"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cmllr/CameraObscura/internal/render"
)

// ServeFile answers a request with a configured file. Exactly one of three
// rendering modes applies, checked in this order: template, placeholder,
// watermark; otherwise the raw bytes are streamed.
type ServeFile struct{}

// Run implements Action.
func (a *ServeFile) Run(ctx *Context) (Result, error) {
	return a.serve(ctx, ctx.Route.ActionConfig("servefile"), ctx.RouteKey)
}

// serve runs the action against an explicit configuration block, so that
// authorize and video can delegate with synthetic configs.
func (a *ServeFile) serve(ctx *Context, cfg map[string]any, routeKey string) (Result, error) {
	if cfg == nil || cfg["file"] == nil {
		return Continue, fmt.Errorf("servefile requires a file")
	}

	file, err := pickFile(cfg["file"])
	if err != nil {
		return Continue, err
	}

	// A capture group in the route key turns the file value into a
	// sub-path template filled from the request path.
	if strings.Contains(routeKey, "(") {
		resolved, ok := a.forwardPattern(ctx, file)
		if !ok {
			ctx.Error(http.StatusNotFound)
			return Terminated, nil
		}
		file = resolved
	}

	switch {
	case truthy(cfg["process_template"]):
		return a.serveTemplate(ctx, file)
	case truthy(cfg["process_placeholders"]) || truthy(cfg["process_placeholder"]):
		return a.servePlaceholders(ctx, file)
	case cfg["watermark"] != nil:
		block, _ := cfg["watermark"].(map[string]any)
		return a.serveWatermarked(ctx, block, ctx.Store.Absolute(file))
	}

	http.ServeFile(ctx.W, ctx.R, ctx.Store.Absolute(file))
	return Terminated, nil
}

// forwardPattern re-runs the route pattern against the original request
// path and substitutes $1, $2, ... in the configured file template. A
// resulting path that does not exist under the content root reports false.
func (a *ServeFile) forwardPattern(ctx *Context, file string) (string, bool) {
	pattern := ctx.Route.Pattern
	if pattern == nil {
		return file, false
	}
	requestPath := strings.TrimPrefix(ctx.R.URL.Path, "/")
	if match := pattern.FindStringSubmatch(requestPath); match != nil {
		for i := 1; i < len(match); i++ {
			file = strings.ReplaceAll(file, fmt.Sprintf("$%d", i), match[i])
		}
	}
	if _, err := os.Stat(ctx.Store.Absolute(file)); err != nil {
		return file, false
	}
	return file, true
}

func (a *ServeFile) serveTemplate(ctx *Context, file string) (Result, error) {
	body, err := ctx.Renderer.Render(file, render.TemplateData{
		GetValues: getString(ctx.R),
		IP:        ctx.R.RemoteAddr,
	})
	if err != nil {
		return Continue, err
	}
	ctx.W.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = ctx.W.Write(body)
	return Terminated, nil
}

func (a *ServeFile) servePlaceholders(ctx *Context, file string) (Result, error) {
	content, err := os.ReadFile(ctx.Store.Absolute(file))
	if err != nil {
		ctx.Error(http.StatusNotFound)
		return Terminated, nil
	}
	body := render.Placeholders(string(content), ctx.Store, time.Now())
	ctx.W.Header().Set("Content-Type", contentTypeFor(file))
	_, _ = ctx.W.Write([]byte(body))
	return Terminated, nil
}

func (a *ServeFile) serveWatermarked(ctx *Context, block map[string]any, path string) (Result, error) {
	derived, err := applyWatermark(block, path, ctx.Store)
	if err != nil {
		return Continue, err
	}
	http.ServeFile(ctx.W, ctx.R, derived)
	return Terminated, nil
}

// pickFile accepts a single path or a list of paths; lists are sampled
// uniformly per request.
func pickFile(value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case []any:
		if len(typed) == 0 {
			return "", fmt.Errorf("servefile file list is empty")
		}
		candidate, ok := typed[rand.Intn(len(typed))].(string)
		if !ok {
			return "", fmt.Errorf("servefile file list must contain strings")
		}
		return candidate, nil
	default:
		return "", fmt.Errorf("servefile file must be a string or list of strings")
	}
}

func contentTypeFor(file string) string {
	if ctype := mime.TypeByExtension(filepath.Ext(file)); ctype != "" {
		return ctype
	}
	return "text/html; charset=utf-8"
}

// truthy interprets JSON booleans and their common string spellings.
func truthy(value any) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		return strings.EqualFold(typed, "true")
	default:
		return false
	}
}

func getString(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return ""
	}
	return "?" + r.URL.RawQuery
}
