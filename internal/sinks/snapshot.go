package sinks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteAtomicJSON replaces the file at path with the JSON encoding of v.
// The write lands in a same-directory temp file which is fsynced and then
// renamed over the target, so readers polling the file never observe a
// partial document.
func WriteAtomicJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func(e error) error {
		tmp.Close()
		os.Remove(tmpName)
		return e
	}

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		return cleanup(fmt.Errorf("write temp snapshot: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("sync temp snapshot: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return cleanup(fmt.Errorf("close temp snapshot: %w", err))
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}
