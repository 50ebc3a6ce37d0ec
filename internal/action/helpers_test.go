package action

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/cmllr/CameraObscura/internal/config"
	"github.com/cmllr/CameraObscura/internal/eventlog"
	"github.com/cmllr/CameraObscura/internal/render"
	"github.com/cmllr/CameraObscura/internal/routes"
)

// captureSink collects audit entries for assertions.
type captureSink struct {
	mu      sync.Mutex
	entries []eventlog.Entry
}

func (s *captureSink) Write(entry eventlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *captureSink) all() []eventlog.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]eventlog.Entry(nil), s.entries...)
}

func newTestStore(t *testing.T, content string) *config.Store {
	t.Helper()
	if content == "" {
		content = "[honeypot]\nsensor = test\n"
	}
	path := filepath.Join(t.TempDir(), config.DefaultFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	store, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return store
}

func newRoute(key string, cfg map[string]map[string]any, names ...string) *routes.Route {
	route := &routes.Route{Key: key, Config: cfg}
	if key != "" {
		route.Pattern = regexp.MustCompile("^(?:" + key + ")")
	}
	for _, name := range names {
		route.Actions = append(route.Actions, routes.ActionSpec{Name: name})
	}
	return route
}

func newContext(t *testing.T, store *config.Store, route *routes.Route, r *http.Request) (*Context, *httptest.ResponseRecorder, *captureSink) {
	t.Helper()
	if r == nil {
		r = httptest.NewRequest(http.MethodGet, "/", nil)
	}
	recorder := httptest.NewRecorder()
	sink := &captureSink{}
	diag := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Context{
		W:        recorder,
		R:        r,
		RouteKey: route.Key,
		Route:    route,
		Token:    "token123",
		Store:    store,
		Events:   eventlog.New("test", diag, sink),
		Renderer: render.NewEngine(store),
		Diag:     diag,
	}, recorder, sink
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
