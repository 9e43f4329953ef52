package arena

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// LogWriter is a thread-safe append-only log, one unique file per Pool
// instance, mirroring the reference's shared log-writer utility.
type LogWriter struct {
	mu         sync.Mutex
	f          *os.File
	timestamps bool
}

// LogWriterOption configures a LogWriter at construction.
type LogWriterOption func(*LogWriter)

// WithTimestamps prefixes each line with a timestamp.
func WithTimestamps(enabled bool) LogWriterOption {
	return func(w *LogWriter) {
		w.timestamps = enabled
	}
}

// NewLogWriter creates a uniquely named file under dir (pattern
// "<prefix>-*.log") and returns a writer over it.
func NewLogWriter(dir, prefix string, opts ...LogWriterOption) (*LogWriter, error) {
	f, err := os.CreateTemp(dir, prefix+"-*.log")
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	w := &LogWriter{f: f}
	for _, fn := range opts {
		fn(w)
	}
	return w, nil
}

// Write appends one line, serialized across concurrent callers.
func (w *LogWriter) Write(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timestamps {
		_, err := fmt.Fprintf(w.f, "[%v] %v\n", time.Now().Format(time.RFC3339), line)
		return err
	}
	_, err := fmt.Fprintln(w.f, line)
	return err
}

// Name returns the underlying file's path.
func (w *LogWriter) Name() string {
	return w.f.Name()
}

// Close closes the underlying file.
func (w *LogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}
