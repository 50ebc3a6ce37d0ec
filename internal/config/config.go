// Package config reads the sectioned configuration file backing the
// honeypot. Values are addressed as section/key pairs; the process-wide
// store is loaded lazily on first use and is read-only afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/ini.v1"
)

// DefaultFile is the configuration file name looked up relative to the
// content root when no explicit path is given.
const DefaultFile = "configuration.cfg"

// Store holds the parsed configuration plus the content root all relative
// paths (themes, download dir, log path) are resolved against.
type Store struct {
	root string
	file *ini.File
}

// Load parses the configuration file at path. The content root defaults to
// the file's directory and may be overridden by honeypot.root.
func Load(path string) (*Store, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve configuration path: %w", err)
	}
	store := &Store{root: filepath.Dir(abs), file: file}
	if root := store.String("honeypot", "root"); root != "" {
		store.root = store.Absolute(root)
	}
	return store, nil
}

// Root returns the content root directory.
func (s *Store) Root() string {
	if s == nil {
		return ""
	}
	return s.root
}

// Absolute resolves a configured path against the content root. Absolute
// inputs are returned unchanged.
func (s *Store) Absolute(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.Root(), path)
}

// String returns the raw value for section/key, or "" when absent.
func (s *Store) String(section, key string) string {
	if s == nil || s.file == nil {
		return ""
	}
	sec := s.file.Section(section)
	if sec == nil || !sec.HasKey(key) {
		return ""
	}
	return strings.TrimSpace(sec.Key(key).String())
}

// Has reports whether section/key is present.
func (s *Store) Has(section, key string) bool {
	if s == nil || s.file == nil {
		return false
	}
	sec := s.file.Section(section)
	return sec != nil && sec.HasKey(key)
}

// Bool returns the value as a boolean; absent or unparsable values are false.
func (s *Store) Bool(section, key string) bool {
	value, err := strconv.ParseBool(s.String(section, key))
	return err == nil && value
}

// Int returns the value as an integer, or fallback when absent or invalid.
func (s *Store) Int(section, key string, fallback int) int {
	value, err := strconv.Atoi(s.String(section, key))
	if err != nil {
		return fallback
	}
	return value
}

var (
	defaultMu    sync.Mutex
	defaultStore *Store
	defaultPath  string
)

// SetDefaultPath overrides where Default loads the configuration from. It
// must be called before the first Default call to take effect.
func SetDefaultPath(path string) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultPath = path
	defaultStore = nil
}

// Default returns the process-wide store, loading it on first use. Two
// concurrent first callers are serialised so initialisation happens once.
func Default() (*Store, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultStore != nil {
		return defaultStore, nil
	}
	path := defaultPath
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
		path = filepath.Join(wd, DefaultFile)
	}
	store, err := Load(path)
	if err != nil {
		return nil, err
	}
	defaultStore = store
	return defaultStore, nil
}

// RequireKeys reports the first key missing from the map, for validating
// per-action route configuration blocks.
func RequireKeys(block map[string]any, keys ...string) error {
	if block == nil {
		return fmt.Errorf("configuration block missing")
	}
	for _, key := range keys {
		if _, ok := block[key]; !ok {
			return fmt.Errorf("configuration value %q missing", key)
		}
	}
	return nil
}
