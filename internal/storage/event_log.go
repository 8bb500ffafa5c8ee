package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one append-only usage record. The stats file is line-delimited
// JSON so it can be tailed and aggregated with standard tooling.
type Event struct {
	Time   time.Time      `json:"time"`
	Type   string         `json:"type"`
	TaskID string         `json:"task_id,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Event types recorded by the service.
const (
	EventTaskSubmitted = "task_submitted"
	EventTaskStarted   = "task_started"
	EventTaskSucceeded = "task_succeeded"
	EventTaskFailed    = "task_failed"
	EventDownload      = "artifact_downloaded"
	EventSweep         = "sweep_completed"
)

// EventLog appends usage events to stats/events.jsonl. Appends are
// serialized; a failed append is logged by the caller and never fails the
// operation being recorded.
type EventLog struct {
	path string
	mu   sync.Mutex
}

// NewEventLog creates an event log writing to dir/events.jsonl.
func NewEventLog(dir string) (*EventLog, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating stats directory: %w", err)
	}
	return &EventLog{path: filepath.Join(dir, "events.jsonl")}, nil
}

// Append writes one event as a JSON line.
func (l *EventLog) Append(event Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("appending event: %w", err)
	}
	return nil
}

// Path returns the absolute path of the event log file.
func (l *EventLog) Path() string {
	return l.path
}
