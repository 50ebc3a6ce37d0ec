package action

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cmllr/CameraObscura/internal/eventlog"
)

func newAuthorizeContext(t *testing.T, r *http.Request, cfg map[string]any) (*Context, *httptest.ResponseRecorder, *captureSink) {
	t.Helper()
	store := newTestStore(t, "")
	route := newRoute("login.*", map[string]map[string]any{"authorize": cfg}, "authorize")
	return newContext(t, store, route, r)
}

func runAuthorize(ctx *Context) (Result, error) {
	auth := &Authorize{serve: &ServeFile{}}
	return auth.Run(ctx)
}

func postRequest(form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestAuthorizeMissingKeysIsFatal(t *testing.T) {
	ctx, _, _ := newAuthorizeContext(t, nil, map[string]any{"key_username": "user"})
	if _, err := runAuthorize(ctx); err == nil {
		t.Fatal("expected fatal configuration error")
	}
}

func TestAuthorizePassThroughWithoutCredentials(t *testing.T) {
	cfg := map[string]any{"key_username": "user", "key_password": "pass", "user_db": "userdb.txt"}

	cases := []struct {
		name string
		r    *http.Request
	}{
		{"no parameters", httptest.NewRequest(http.MethodGet, "/login", nil)},
		{"username only", httptest.NewRequest(http.MethodGet, "/login?user=admin", nil)},
		{"password only", httptest.NewRequest(http.MethodGet, "/login?pass=x", nil)},
		// Username from GET plus password from POST must not count as
		// an attempt: sources are never mixed.
		{"mixed sources", func() *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/login?user=admin",
				strings.NewReader("pass=x"))
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			return r
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, recorder, sink := newAuthorizeContext(t, tc.r, cfg)
			result, err := runAuthorize(ctx)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if result != Continue {
				t.Fatal("expected pass-through")
			}
			if recorder.Code != http.StatusOK || recorder.Body.Len() != 0 {
				t.Fatalf("response written: %d %q", recorder.Code, recorder.Body.String())
			}
			if len(sink.all()) != 0 {
				t.Fatal("no attempt should be logged")
			}
		})
	}
}

func TestAuthorizeSuccessPassesThrough(t *testing.T) {
	store := newTestStore(t, "")
	writeFile(t, filepath.Join(store.Root(), "userdb.txt"), "admin;secret\nroot;toor\n")
	cfg := map[string]any{"key_username": "user", "key_password": "pass", "user_db": "userdb.txt"}
	route := newRoute("login.*", map[string]map[string]any{"authorize": cfg}, "authorize")

	ctx, recorder, sink := newContext(t, store, route, postRequest(url.Values{"user": {"admin"}, "pass": {"secret"}}))
	result, err := runAuthorize(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result != Continue {
		t.Fatal("successful login must pass through")
	}
	if recorder.Body.Len() != 0 {
		t.Fatalf("unexpected body %q", recorder.Body.String())
	}

	entries := sink.all()
	if len(entries) != 1 || entries[0].EventID != eventlog.EventLoginSuccess || entries[0].IsError {
		t.Fatalf("entries = %+v", entries)
	}
	if !strings.Contains(entries[0].Message, `"admin"`) || !strings.Contains(entries[0].Message, `"secret"`) {
		t.Fatalf("attempt message must capture the credentials: %q", entries[0].Message)
	}
}

func TestAuthorizeFailureDefaultsTo403(t *testing.T) {
	store := newTestStore(t, "")
	writeFile(t, filepath.Join(store.Root(), "userdb.txt"), "admin;secret\n")
	cfg := map[string]any{"key_username": "user", "key_password": "pass", "user_db": "userdb.txt"}
	route := newRoute("login.*", map[string]map[string]any{"authorize": cfg}, "authorize")

	ctx, recorder, sink := newContext(t, store, route, postRequest(url.Values{"user": {"admin"}, "pass": {"wrong"}}))
	result, err := runAuthorize(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result != Terminated {
		t.Fatal("failed login must terminate the pipeline")
	}
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", recorder.Code)
	}
	entries := sink.all()
	if len(entries) != 1 || entries[0].EventID != eventlog.EventLoginFailed || !entries[0].IsError {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestAuthorizeFailureWithStatusCode(t *testing.T) {
	store := newTestStore(t, "")
	writeFile(t, filepath.Join(store.Root(), "userdb.txt"), "admin;secret\n")
	cfg := map[string]any{
		"key_username": "user", "key_password": "pass", "user_db": "userdb.txt",
		// JSON numbers decode as float64.
		"on_error": float64(401),
	}
	route := newRoute("login.*", map[string]map[string]any{"authorize": cfg}, "authorize")

	ctx, recorder, _ := newContext(t, store, route, postRequest(url.Values{"user": {"x"}, "pass": {"y"}}))
	if _, err := runAuthorize(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
}

func TestAuthorizeFailureServesErrorFile(t *testing.T) {
	store := newTestStore(t, "[honeypot]\nsensor = cam-9\n")
	writeFile(t, filepath.Join(store.Root(), "userdb.txt"), "admin;secret\n")
	writeFile(t, filepath.Join(store.Root(), "denied.html"), "sensor $honeypot.sensor says no")
	cfg := map[string]any{
		"key_username": "user", "key_password": "pass", "user_db": "userdb.txt",
		"on_error":             "denied.html",
		"on_error_placeholder": true,
	}
	route := newRoute("login.*", map[string]map[string]any{"authorize": cfg}, "authorize")

	ctx, recorder, _ := newContext(t, store, route, postRequest(url.Values{"user": {"x"}, "pass": {"y"}}))
	result, err := runAuthorize(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result != Terminated {
		t.Fatal("expected termination")
	}
	if got := recorder.Body.String(); got != "sensor cam-9 says no" {
		t.Fatalf("body = %q", got)
	}
}

func TestAuthorizeFailureRedirects(t *testing.T) {
	store := newTestStore(t, "")
	writeFile(t, filepath.Join(store.Root(), "userdb.txt"), "admin;secret\n")
	cfg := map[string]any{
		"key_username": "user", "key_password": "pass", "user_db": "userdb.txt",
		"on_error": "/index.html",
	}
	route := newRoute("login.*", map[string]map[string]any{"authorize": cfg}, "authorize")

	ctx, recorder, _ := newContext(t, store, route, postRequest(url.Values{"user": {"x"}, "pass": {"y"}}))
	if _, err := runAuthorize(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if recorder.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", recorder.Code)
	}
	if got := recorder.Header().Get("Location"); got != "/index.html" {
		t.Fatalf("location = %q", got)
	}
}

func TestAuthorizeReparsesEscapedQueryString(t *testing.T) {
	store := newTestStore(t, "")
	writeFile(t, filepath.Join(store.Root(), "userdb.txt"), "admin;secret\n")
	cfg := map[string]any{"key_username": "user", "key_password": "pass", "user_db": "userdb.txt"}
	route := newRoute("login.*", map[string]map[string]any{"authorize": cfg}, "authorize")

	// The whole query arrived as one percent-escaped blob; the literal
	// "%3" triggers a second decode pass.
	r := httptest.NewRequest(http.MethodGet, "/login?user%3Dadmin%26pass%3Dsecret", nil)
	ctx, _, sink := newContext(t, store, route, r)
	result, err := runAuthorize(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result != Continue {
		t.Fatal("valid credentials should pass through")
	}
	entries := sink.all()
	if len(entries) != 1 || entries[0].EventID != eventlog.EventLoginSuccess {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestAuthorizeMissingUserDBIsFatal(t *testing.T) {
	cfg := map[string]any{"key_username": "user", "key_password": "pass"}
	ctx, _, _ := newAuthorizeContext(t, httptest.NewRequest(http.MethodGet, "/login?user=a&pass=b", nil), cfg)
	if _, err := runAuthorize(ctx); err == nil {
		t.Fatal("expected fatal error for missing user database")
	}
}
