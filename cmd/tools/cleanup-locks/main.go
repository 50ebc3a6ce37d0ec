// Command cleanup-locks sweeps the transcoder working directory: it kills
// the PID recorded in each stale lock file, removes the lock, and deletes
// leftover HLS segments and temporary files. Run it before starting the
// sensor or from a maintenance cron.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/cmllr/CameraObscura/internal/config"
	"github.com/cmllr/CameraObscura/internal/eventlog"
	"github.com/cmllr/CameraObscura/internal/observability/logging"
)

func main() {
	configPath := flag.String("config", config.DefaultFile, "path to the configuration file")
	dir := flag.String("dir", "", "working directory to sweep (default: <root>/ul)")
	flag.Parse()

	logger := logging.Init(logging.Config{Format: "text"})

	config.SetDefaultPath(*configPath)
	store, err := config.Default()
	if err != nil {
		logger.Error("load configuration", "error", err)
		os.Exit(1)
	}

	target := *dir
	if target == "" {
		target = store.Absolute("ul")
	}

	events := eventlog.New(store.String("honeypot", "sensor"), logger, eventlog.NewStdoutSink(nil))

	if err := sweep(target, events); err != nil {
		logger.Error("sweep failed", "dir", target, "error", err)
		os.Exit(1)
	}
}

func sweep(dir string, events *eventlog.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read working directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		switch {
		case strings.HasSuffix(entry.Name(), ".lock"):
			removeLock(path, events)
		case strings.HasSuffix(entry.Name(), ".ts"), strings.HasSuffix(entry.Name(), ".tmp"):
			_ = os.Remove(path)
		}
	}
	return nil
}

// removeLock kills the recorded PID if it still runs, then deletes the lock.
func removeLock(path string, events *eventlog.Logger) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err == nil && pid > 0 {
		if process, err := os.FindProcess(pid); err == nil {
			// Signal 0 probes liveness without touching the process.
			if process.Signal(syscall.Signal(0)) == nil {
				_ = process.Kill()
			}
		}
		events.Log(eventlog.EventRemovedLock,
			fmt.Sprintf("Found old lockfile %s and killed PID %d", path, pid), false, "", nil)
	}
	_ = os.Remove(path)
}
