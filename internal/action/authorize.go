package action

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/cmllr/CameraObscura/internal/config"
	"github.com/cmllr/CameraObscura/internal/eventlog"
)

// Authorize checks submitted credentials against the user database. The
// attempt is always logged, credentials included: capturing what attackers
// submit is the point of the sensor. Requests that never attempt a login
// pass through so public and gated resources can share a route.
type Authorize struct {
	serve *ServeFile
}

// Run implements Action.
func (a *Authorize) Run(ctx *Context) (Result, error) {
	cfg := ctx.Route.ActionConfig("authorize")
	if err := config.RequireKeys(cfg, "key_username", "key_password"); err != nil {
		return Continue, fmt.Errorf("authorize: %w", err)
	}
	keyUsername, _ := cfg["key_username"].(string)
	keyPassword, _ := cfg["key_password"].(string)

	username, password, found := findCredentials(ctx.R, keyUsername, keyPassword)
	if !found {
		// No authorization attempt was made; let the rest of the
		// pipeline decide what this request sees.
		return Continue, nil
	}

	userDB, _ := cfg["user_db"].(string)
	if userDB == "" {
		return Continue, fmt.Errorf("authorize: user database not configured")
	}

	authorized, err := isAuthorized(username, password, ctx.Store.Absolute(userDB))
	if err != nil {
		return Continue, fmt.Errorf("authorize: %w", err)
	}

	event := eventlog.EventLoginSuccess
	if !authorized {
		event = eventlog.EventLoginFailed
	}
	ctx.Events.LogRequest(event, fmt.Sprintf("Login attempt %q:%q", username, password), ctx.R, !authorized)

	if authorized {
		return Continue, nil
	}
	return a.fail(ctx, cfg)
}

// fail resolves the on_error ladder: absent -> 403, integer -> that status,
// existing path -> serve that file, anything else -> redirect.
func (a *Authorize) fail(ctx *Context, cfg map[string]any) (Result, error) {
	onError, present := cfg["on_error"]
	if !present {
		ctx.Error(http.StatusForbidden)
		return Terminated, nil
	}

	switch typed := onError.(type) {
	case float64:
		ctx.Error(int(typed))
		return Terminated, nil
	case int:
		ctx.Error(typed)
		return Terminated, nil
	case string:
		if _, err := os.Stat(ctx.Store.Absolute(typed)); err == nil {
			return a.serve.serve(ctx, map[string]any{
				"file":                 typed,
				"process_placeholders": truthy(cfg["on_error_placeholder"]),
				"process_template":     truthy(cfg["on_error_process_template"]),
			}, "")
		}
		http.Redirect(ctx.W, ctx.R, typed, http.StatusFound)
		return Terminated, nil
	default:
		return Continue, fmt.Errorf("authorize: on_error must be a status code or path")
	}
}

// findCredentials looks the two keys up in GET first, then POST. Both
// values must come from the same source; a username from one and a password
// from the other is not an attempt.
func findCredentials(r *http.Request, keyUsername, keyPassword string) (string, string, bool) {
	for _, source := range []url.Values{getValues(r), postValues(r)} {
		usernames, hasUser := source[keyUsername]
		passwords, hasPass := source[keyPassword]
		if hasUser && hasPass && len(usernames) > 0 && len(passwords) > 0 {
			return usernames[0], passwords[0], true
		}
	}
	return "", "", false
}

// getValues returns the GET parameters. A raw query containing the literal
// "%3" arrived as a doubly-escaped blob that did not split into discrete
// keys; unescape and re-parse it before use.
func getValues(r *http.Request) url.Values {
	raw := r.URL.RawQuery
	if strings.Contains(raw, "%3") {
		if unescaped, err := url.QueryUnescape(raw); err == nil {
			if reparsed, err := url.ParseQuery(unescaped); err == nil {
				return reparsed
			}
		}
	}
	return r.URL.Query()
}

func postValues(r *http.Request) url.Values {
	if r.PostForm == nil {
		_ = r.ParseForm()
	}
	return r.PostForm
}

// isAuthorized reads the user database fresh on every attempt so credential
// updates apply without a restart. Records are username;password lines; the
// first ";" delimits, both fields match by exact string equality.
func isAuthorized(username, password, userDB string) (bool, error) {
	file, err := os.Open(userDB)
	if err != nil {
		return false, fmt.Errorf("open user database: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		dbUsername, dbPassword, ok := strings.Cut(scanner.Text(), ";")
		if !ok {
			continue
		}
		if dbUsername == username && dbPassword == password {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("read user database: %w", err)
	}
	return false, nil
}
