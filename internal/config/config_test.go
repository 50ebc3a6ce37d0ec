package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadReadsSectionedValues(t *testing.T) {
	path := writeConfig(t, "[honeypot]\nsensor = cam-01\ndebug = true\n\n[http]\nport = 8080\n")
	store, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := store.String("honeypot", "sensor"); got != "cam-01" {
		t.Fatalf("sensor = %q, want cam-01", got)
	}
	if !store.Bool("honeypot", "debug") {
		t.Fatal("debug should be true")
	}
	if got := store.Int("http", "port", 80); got != 8080 {
		t.Fatalf("port = %d, want 8080", got)
	}
	if got := store.Int("http", "missing", 80); got != 80 {
		t.Fatalf("missing port = %d, want fallback 80", got)
	}
	if store.Has("http", "missing") {
		t.Fatal("missing key reported present")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.cfg")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAbsoluteResolvesAgainstRoot(t *testing.T) {
	path := writeConfig(t, "[honeypot]\nsensor = cam\n")
	store, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := filepath.Join(filepath.Dir(path), "ul", "video.lock")
	if got := store.Absolute(filepath.Join("ul", "video.lock")); got != want {
		t.Fatalf("absolute = %q, want %q", got, want)
	}
	if got := store.Absolute("/etc/passwd"); got != "/etc/passwd" {
		t.Fatalf("absolute path changed: %q", got)
	}
}

func TestDefaultInitialisesOnce(t *testing.T) {
	path := writeConfig(t, "[honeypot]\nsensor = first\n")
	SetDefaultPath(path)
	t.Cleanup(func() { SetDefaultPath("") })

	done := make(chan *Store, 2)
	for i := 0; i < 2; i++ {
		go func() {
			store, err := Default()
			if err != nil {
				t.Errorf("default: %v", err)
			}
			done <- store
		}()
	}
	first, second := <-done, <-done
	if first != second {
		t.Fatal("concurrent first reads produced different stores")
	}
}

func TestRequireKeys(t *testing.T) {
	block := map[string]any{"key_username": "u", "key_password": "p"}
	if err := RequireKeys(block, "key_username", "key_password"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := RequireKeys(block, "key_username", "user_db"); err == nil {
		t.Fatal("expected error for missing key")
	}
	if err := RequireKeys(nil, "anything"); err == nil {
		t.Fatal("expected error for nil block")
	}
}
