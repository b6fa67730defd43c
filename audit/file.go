package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultFilePath is where the file sink writes when no path is configured.
const DefaultFilePath = "logs/match_reason.log"

// FileSink appends one line per record to a log file. The file is opened
// in append mode for each batch and closed again, so several processes may
// share it.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates a sink for path, or DefaultFilePath when empty.
func NewFileSink(path string) *FileSink {
	if path == "" {
		path = DefaultFilePath
	}
	return &FileSink{path: path}
}

// Path returns the log file location.
func (f *FileSink) Path() string {
	return f.path
}

// Append writes records as lines in input order.
func (f *FileSink) Append(_ context.Context, records []DecisionRecord) error {
	if len(records) == 0 {
		return nil
	}

	var b strings.Builder
	for _, r := range records {
		b.WriteString(r.Line())
		b.WriteByte('\n')
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create audit log directory: %w", err)
		}
	}

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(b.String()); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}
