package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const auditFileName = "detection.ndjson"

// Logger appends events to an ndjson file, rotating once when it
// exceeds maxSizeBytes. It is owned by the poller and never shared,
// so it carries no locking.
type Logger struct {
	enabled      bool
	maxSizeBytes int64
	path         string
	file         *os.File
	w            *bufio.Writer
	written      int64
}

// NewLogger opens (or creates) the audit log under dir. When enabled
// is false every call is a no-op.
func NewLogger(dir string, enabled bool, maxSizeBytes int64) (*Logger, error) {
	l := &Logger{
		enabled:      enabled,
		maxSizeBytes: maxSizeBytes,
		path:         filepath.Join(dir, auditFileName),
	}
	if !enabled {
		return l, nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("audit: create dir: %w", err)
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) open() error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("audit: open: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("audit: stat: %w", err)
	}
	l.file = f
	l.w = bufio.NewWriter(f)
	l.written = info.Size()
	return nil
}

// Log appends one event as a single JSON line and flushes
// immediately, rotating first if the file has grown past the limit.
func (l *Logger) Log(ev Event) {
	if !l.enabled || l.w == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if l.written+int64(len(data))+1 > l.maxSizeBytes {
		l.rotate()
		if l.w == nil {
			return
		}
	}
	n, err := l.w.Write(append(data, '\n'))
	if err != nil {
		return
	}
	l.written += int64(n)
	_ = l.w.Flush()
}

// rotate moves the current file to a single .1 generation and starts
// fresh. A failed rename drops the old log rather than growing
// without bound.
func (l *Logger) rotate() {
	_ = l.w.Flush()
	_ = l.file.Close()
	l.file = nil
	l.w = nil

	rotated := l.path + ".1"
	if err := os.Rename(l.path, rotated); err != nil {
		_ = os.Remove(l.path)
	}
	_ = l.open()
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	if l.w != nil {
		_ = l.w.Flush()
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the log file's location.
func (l *Logger) Path() string { return l.path }

// LoadEvents parses an ndjson audit file into an event slice,
// skipping malformed lines.
func LoadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, sc.Err()
}
