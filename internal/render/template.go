package render

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"

	"github.com/cmllr/CameraObscura/internal/config"
)

// TemplateData is what theme templates see: the raw GET string of the
// request and the requester address, plus a config lookup function.
type TemplateData struct {
	GetValues string
	IP        string
}

// Engine renders theme template files from the templates directory under
// the content root.
type Engine struct {
	store *config.Store
}

// NewEngine returns a template engine bound to the configuration store.
func NewEngine(store *config.Store) *Engine {
	return &Engine{store: store}
}

// TemplatesDir returns the root directory theme files live under.
func (e *Engine) TemplatesDir() string {
	return e.store.Absolute("templates")
}

// Render parses and executes a single template file. name is relative to
// the templates directory; files configured with a leading "templates/"
// prefix are accepted too.
func (e *Engine) Render(name string, data TemplateData) ([]byte, error) {
	path := filepath.Join(e.TemplatesDir(), filepath.FromSlash(trimTemplatesPrefix(name)))
	tmpl, err := template.New(filepath.Base(path)).Funcs(template.FuncMap{
		"config": e.store.String,
	}).ParseFiles(path)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func trimTemplatesPrefix(name string) string {
	const prefix = "templates/"
	if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
		return name[len(prefix):]
	}
	return name
}
