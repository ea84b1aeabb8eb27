package transcript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ragchat/internal/domain"
)

// Sink is an append-only transcript file and the format written to it.
type Sink struct {
	Path      string
	Formatter Formatter
}

// Recorder writes each turn to every sink. Files are opened per write so
// nothing is held open between turns.
type Recorder struct {
	mu    sync.Mutex
	sinks []Sink
}

// NewRecorder returns a recorder writing to sinks in order.
func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks}
}

// Default returns the text and JSON-lines sinks used by the chat command.
func Default(textPath, jsonPath string) *Recorder {
	return NewRecorder(
		Sink{Path: textPath, Formatter: TextFormatter{}},
		Sink{Path: jsonPath, Formatter: JSONFormatter{}},
	)
}

// Record formats the turn for every sink and opens every file before the
// first write, so formatting or open failures leave all files untouched.
// A failed write truncates every file back to its previous size.
func (r *Recorder) Record(turn domain.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([][]byte, len(r.sinks))
	for i, s := range r.sinks {
		data, err := s.Formatter.Format(turn)
		if err != nil {
			return fmt.Errorf("format %s: %w", s.Path, err)
		}
		records[i] = data
	}

	files := make([]*os.File, 0, len(r.sinks))
	closeAll := func() error {
		var errs []error
		for _, f := range files {
			errs = append(errs, f.Close())
		}
		return errors.Join(errs...)
	}
	for _, s := range r.sinks {
		if dir := filepath.Dir(s.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				_ = closeAll()
				return fmt.Errorf("create %s: %w", dir, err)
			}
		}
		f, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			_ = closeAll()
			return fmt.Errorf("open %s: %w", s.Path, err)
		}
		files = append(files, f)
	}

	sizes := make([]int64, len(files))
	for i, f := range files {
		st, err := f.Stat()
		if err != nil {
			_ = closeAll()
			return fmt.Errorf("stat %s: %w", r.sinks[i].Path, err)
		}
		sizes[i] = st.Size()
	}

	for i, f := range files {
		if _, err := f.Write(records[i]); err != nil {
			rollback(files[:i+1], sizes)
			_ = closeAll()
			return fmt.Errorf("write %s: %w", r.sinks[i].Path, err)
		}
	}
	return closeAll()
}

// rollback cuts each file back to the size it had before the turn was written.
func rollback(files []*os.File, sizes []int64) {
	for i, f := range files {
		_ = f.Truncate(sizes[i])
	}
}
