// Package audit writes the authentication lifecycle to a JSON-lines log:
// flow started, login failed, flow suspended and resumed, session issued.
// Entries carry stable codes; secrets never reach this log.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Event is one audit log entry
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	Action    string                 `json:"action"`
	Username  string                 `json:"username,omitempty"`
	Source    string                 `json:"source,omitempty"`
	Code      string                 `json:"code,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Logger appends events to a single audit log file. "stdout" and "-" log to
// standard output.
type Logger struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewLogger creates an audit logger writing to path. The file is opened
// lazily on first write.
func NewLogger(path string) *Logger {
	return &Logger{path: path}
}

// Log writes one event, stamping the time
func (l *Logger) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		if l.path == "stdout" || l.path == "-" {
			l.file = os.Stdout
		} else {
			f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("failed to open audit log: %w", err)
			}
			l.file = f
		}
	}

	event.Timestamp = time.Now()
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	if _, err := fmt.Fprintf(l.file, "%s\n", data); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// Close closes the underlying file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil || l.file == os.Stdout {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
