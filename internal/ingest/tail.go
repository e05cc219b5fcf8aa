package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/cetp/sentinel/internal/stream"
)

// tailState tracks the read position and parsed header of one tailed file.
type tailState struct {
	offset  int64
	idx     map[string]int
	partial string // trailing bytes of an incomplete last line
}

// fileTailer follows append-only CSV files in one directory. The initial
// pass reads each file fully; afterwards fsnotify write events trigger a
// read of only the appended bytes. Lines are surfaced as raw CSV records;
// callers parse them with the row builder for their schema.
type fileTailer struct {
	dir     string
	pattern string
	rename  map[string]string
	logger  *log.Logger

	mu    sync.Mutex
	files map[string]*tailState
}

func newFileTailer(dir, pattern string, rename map[string]string) *fileTailer {
	return &fileTailer{
		dir:     dir,
		pattern: pattern,
		rename:  rename,
		logger:  log.New(log.Writer(), "[TAIL] ", log.LstdFlags),
		files:   make(map[string]*tailState),
	}
}

// drain reads everything appended to path since the last call and invokes
// emit once per complete record. The header is consumed on first contact.
func (t *fileTailer) drain(path string, emit func(rec []string, idx map[string]int)) {
	t.mu.Lock()
	st, ok := t.files[path]
	if !ok {
		st = &tailState{}
		t.files[path] = st
	}
	t.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		t.logger.Printf("open %s: %v", path, err)
		return
	}
	defer f.Close()

	if _, err := f.Seek(st.offset, io.SeekStart); err != nil {
		t.logger.Printf("seek %s: %v", path, err)
		return
	}

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			// Incomplete trailing line; keep it for the next write event.
			st.partial += line
			st.offset += int64(len(line))
			break
		}
		st.offset += int64(len(line))
		full := st.partial + strings.TrimRight(line, "\r\n")
		st.partial = ""
		if full == "" {
			continue
		}
		rec, err := csv.NewReader(strings.NewReader(full)).Read()
		if err != nil {
			continue
		}
		if st.idx == nil {
			st.idx = headerIndex(rec, t.rename)
			continue
		}
		emit(rec, st.idx)
	}
}

// run performs the initial full read then blocks on fsnotify events until
// the context is cancelled. emit is called in file-append order per file.
func (t *fileTailer) run(ctx context.Context, emit func(rec []string, idx map[string]int)) error {
	paths, err := listCSVFiles(t.dir, t.pattern)
	if err != nil {
		return err
	}
	for _, p := range paths {
		t.drain(p, emit)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(t.dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			matched, _ := filepath.Match(t.pattern, filepath.Base(ev.Name))
			if !matched {
				continue
			}
			t.drain(ev.Name, emit)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.logger.Printf("watch %s: %v", t.dir, err)
		}
	}
}

// TailCETPSource follows appended CETP rows. The channel never closes on
// EOF; it closes when the context is cancelled.
type TailCETPSource struct {
	Dir string
}

func (s *TailCETPSource) Rows(ctx context.Context) (<-chan stream.CETPRow, error) {
	if _, err := os.Stat(s.Dir); err != nil {
		return nil, err
	}
	out := make(chan stream.CETPRow, 256)
	tailer := newFileTailer(s.Dir, "*.csv", CETPColumnMap)
	go func() {
		defer close(out)
		_ = tailer.run(ctx, func(rec []string, idx map[string]int) {
			select {
			case out <- parseCETPRecord(rec, idx):
			case <-ctx.Done():
			}
		})
	}()
	return out, nil
}

// TailFactorySource follows appended factory rows.
type TailFactorySource struct {
	Dir string
}

func (s *TailFactorySource) Rows(ctx context.Context) (<-chan stream.FactoryRow, error) {
	if _, err := os.Stat(s.Dir); err != nil {
		return nil, err
	}
	out := make(chan stream.FactoryRow, 256)
	tailer := newFileTailer(s.Dir, "factory_*.csv", FactoryColumnMap)
	go func() {
		defer close(out)
		_ = tailer.run(ctx, func(rec []string, idx map[string]int) {
			select {
			case out <- parseFactoryRecord(rec, idx):
			case <-ctx.Done():
			}
		})
	}()
	return out, nil
}
