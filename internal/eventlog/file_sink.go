package eventlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// FileSink appends JSON lines to a log file, rotating it to <path>.<N> once
// its age exceeds the configured timespan. Rotation is a check-then-act
// sequence, so every write holds the sink mutex: concurrent writers never
// rotate the same rollover window twice.
type FileSink struct {
	path     string
	timespan time.Duration
	compress bool

	mu  sync.Mutex
	now func() time.Time
}

// NewFileSink builds a file sink. timespan is the maximum age of the live
// file before the next write rotates it; compress additionally gzips the
// rotated file.
func NewFileSink(path string, timespan time.Duration, compress bool) *FileSink {
	return &FileSink{path: path, timespan: timespan, compress: compress, now: time.Now}
}

// Write implements Sink.
func (s *FileSink) Write(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rotateLocked(); err != nil {
		return err
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append log file: %w", err)
	}
	return nil
}

// rotateLocked renames the live file to <path>.<N> when it is older than
// the timespan. N counts the files sharing the log's base name, so the live
// file itself yields suffix 1 on the first rotation.
func (s *FileSink) rotateLocked() error {
	if s.timespan <= 0 {
		return nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat log file: %w", err)
	}
	if info.ModTime().Add(s.timespan).After(s.now()) {
		return nil
	}

	suffix, err := s.countRelated()
	if err != nil {
		return err
	}
	rotated := fmt.Sprintf("%s.%d", s.path, suffix)
	if err := os.Rename(s.path, rotated); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}
	if s.compress {
		if err := gzipFile(rotated); err != nil {
			return fmt.Errorf("compress rotated log: %w", err)
		}
	}
	return nil
}

func (s *FileSink) countRelated() (int, error) {
	dir := filepath.Dir(s.path)
	base := filepath.Base(s.path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("scan log directory: %w", err)
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), base) {
			count++
		}
	}
	return count, nil
}

func gzipFile(path string) error {
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	writer := gzip.NewWriter(target)
	if _, err := io.Copy(writer, source); err != nil {
		target.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		target.Close()
		return err
	}
	if err := target.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
