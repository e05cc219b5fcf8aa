// Package sinks owns the durable outputs: append-only JSONL logs for
// evidence, tamper, alert, and quarantine records, and atomic JSON snapshot
// writes for the KPI file.
package sinks

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// JSONLWriter appends one JSON object per line to a log file. The file (and
// its directory) is created lazily on the first append, so a clean run that
// detects nothing leaves no empty artifacts behind. Safe for concurrent use.
type JSONLWriter struct {
	path   string
	mu     sync.Mutex
	f      *os.File
	logger *log.Logger
}

func NewJSONLWriter(path string) *JSONLWriter {
	return &JSONLWriter{
		path:   path,
		logger: log.New(log.Writer(), "[SINK] ", log.LstdFlags),
	}
}

// Path returns the configured log location.
func (w *JSONLWriter) Path() string { return w.path }

// Append marshals v and writes it as one line. Errors are returned, not
// fatal; the caller decides whether a lost log line stops the pipeline.
func (w *JSONLWriter) Append(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open %s: %w", w.path, err)
		}
		w.f = f
		w.logger.Printf("opened %s", w.path)
	}

	if _, err := w.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append to %s: %w", w.path, err)
	}
	return nil
}

// Close flushes and closes the underlying file if it was ever opened.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
