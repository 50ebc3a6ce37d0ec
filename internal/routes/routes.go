// Package routes loads the route table and matches incoming requests
// against it. Route keys are regular expressions tested against the request
// path with the query string appended; the empty key is the site root
// fallback. Table order is match priority: first match wins.
package routes

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

// ActionSpec names one pipeline step. The per-action configuration block is
// looked up on the owning route by the action name.
type ActionSpec struct {
	Name string
}

// Route is one immutable route table entry.
type Route struct {
	// Key is the raw pattern string from the routes file.
	Key string
	// Pattern is Key compiled with an implicit start anchor. Nil for the
	// default route.
	Pattern *regexp.Regexp
	// Actions run in order; the first terminal response wins.
	Actions []ActionSpec
	// Headers are attached to the outgoing response before any action
	// writes.
	Headers map[string]string
	// Config holds the opaque per-action blocks keyed by action name.
	Config map[string]map[string]any
}

// ActionConfig returns the configuration block for the named action, or nil.
func (r *Route) ActionConfig(name string) map[string]any {
	if r == nil {
		return nil
	}
	return r.Config[name]
}

// Table is the ordered route table loaded once at startup.
type Table struct {
	entries []*Route
}

// rawRoute mirrors one routes.json value before compilation.
type rawRoute struct {
	Actions []json.RawMessage `json:"actions"`
	Headers map[string]string `json:"headers"`
}

// Parse decodes and compiles a routes description document. Duplicate keys
// and invalid patterns are deployment errors and fail the load.
func Parse(data []byte) (*Table, error) {
	var ordered []struct {
		key string
		raw json.RawMessage
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	token, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("decode routes: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("decode routes: document must be an object")
	}
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("decode routes: %w", err)
		}
		key, ok := token.(string)
		if !ok {
			return nil, fmt.Errorf("decode routes: route key must be a string")
		}
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode route %q: %w", key, err)
		}
		ordered = append(ordered, struct {
			key string
			raw json.RawMessage
		}{key, raw})
	}

	table := &Table{}
	seen := make(map[string]struct{}, len(ordered))
	for _, entry := range ordered {
		if _, dup := seen[entry.key]; dup {
			return nil, fmt.Errorf("duplicate route key %q", entry.key)
		}
		seen[entry.key] = struct{}{}

		route, err := compileRoute(entry.key, entry.raw)
		if err != nil {
			return nil, err
		}
		table.entries = append(table.entries, route)
	}
	return table, nil
}

// LoadFile reads and parses the routes description file.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	table, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return table, nil
}

func compileRoute(key string, raw json.RawMessage) (*Route, error) {
	var decoded rawRoute
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode route %q: %w", key, err)
	}

	route := &Route{
		Key:     key,
		Headers: decoded.Headers,
		Config:  make(map[string]map[string]any),
	}
	if key != "" {
		pattern, err := regexp.Compile("^(?:" + key + ")")
		if err != nil {
			return nil, fmt.Errorf("route key %q is not a valid pattern: %w", key, err)
		}
		route.Pattern = pattern
	}

	for _, rawAction := range decoded.Actions {
		var block map[string]map[string]any
		if err := json.Unmarshal(rawAction, &block); err != nil {
			return nil, fmt.Errorf("decode action for route %q: %w", key, err)
		}
		if len(block) != 1 {
			return nil, fmt.Errorf("route %q: each action entry must name exactly one action", key)
		}
		for name, cfg := range block {
			route.Actions = append(route.Actions, ActionSpec{Name: name})
			if cfg != nil {
				route.Config[name] = cfg
			}
		}
	}
	return route, nil
}

// Len returns the number of table entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Match finds the route serving path (no leading slash) with the given raw
// query string. Entries are tested in table order and the first match wins.
// Paths starting with "." never match a non-default route. When nothing
// matches an empty path, the default route (empty key) is returned if
// present. A nil route means no route, a 404 at the boundary.
func (t *Table) Match(path, query string) *Route {
	if t == nil {
		return nil
	}
	path = strings.TrimSuffix(path, "/")
	needle := path
	if query != "" {
		needle += "?" + query
	}
	for _, route := range t.entries {
		if route.Key == "" {
			continue
		}
		if path == "" || strings.HasPrefix(path, ".") {
			continue
		}
		if route.Pattern.MatchString(needle) {
			return route
		}
	}
	if path == "" {
		for _, route := range t.entries {
			if route.Key == "" {
				return route
			}
		}
	}
	return nil
}
