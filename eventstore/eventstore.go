// Package eventstore persists closed aggregation events to an append-only
// JSONL file, one JSON object per line. Reads are full scans; the store is
// sized for session-scale logs, not long-term archives.
package eventstore

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/TheGonzalezDesigns/corpus-vision/errors"
)

// Event is one persisted record. ts_ms, ts_iso, duration_ms and
// frames_count are always written; the remaining fields are omitted when
// empty.
type Event struct {
	ID             string   `json:"id,omitempty"`
	Type           string   `json:"type,omitempty"`
	TimestampMS    int64    `json:"ts_ms"`
	TimestampISO   string   `json:"ts_iso"`
	DurationMS     int64    `json:"duration_ms"`
	FramesCount    int      `json:"frames_count"`
	ConfidenceHint float64  `json:"confidence_hint,omitempty"`
	Description    string   `json:"description,omitempty"`
	Observations   []string `json:"observations,omitempty"`
	Changes        []string `json:"changes,omitempty"`
	Novel          *bool    `json:"novel,omitempty"`
	Salience       *int     `json:"salience,omitempty"`
	Source         string   `json:"source,omitempty"`
}

// ContextEvent is the reduced projection used for prompt context.
type ContextEvent struct {
	TimestampISO   string  `json:"ts_iso"`
	DurationMS     int64   `json:"duration_ms"`
	FramesCount    int     `json:"frames_count"`
	Description    string  `json:"description,omitempty"`
	ConfidenceHint float64 `json:"confidence_hint,omitempty"`
}

// ContextWindow is the result of a Context query, ordered oldest to newest.
type ContextWindow struct {
	WindowMinutes int            `json:"window_minutes"`
	Limit         int            `json:"limit"`
	Count         int            `json:"count"`
	Events        []ContextEvent `json:"events"`
}

// Store is a mutex-guarded JSONL event log.
type Store struct {
	path string
	mu   sync.Mutex

	// now is swappable for tests
	now func() time.Time
}

// New creates a store writing to path, creating parent directories as
// needed.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.WrapInvalid(
			errors.ErrMissingConfig, "Store", "New", "event log path required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.WrapFatal(err, "Store", "New", "create event log directory")
		}
	}
	return &Store{path: path, now: time.Now}, nil
}

// Path returns the underlying file path.
func (s *Store) Path() string {
	return s.path
}

// Append serializes the event and appends it as one line. Concurrent
// appends are serialized; prior lines are never rewritten.
func (s *Store) Append(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.WrapInvalid(err, "Store", "Append", "serialize event")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.WrapTransient(err, "Store", "Append", "open event log")
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return errors.WrapTransient(err, "Store", "Append", "write event")
	}
	return nil
}

// readAll loads every parseable event in file order. Blank and malformed
// lines are skipped.
func (s *Store) readAll() ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapTransient(err, "Store", "readAll", "open event log")
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WrapTransient(err, "Store", "readAll", "scan event log")
	}
	return events, nil
}

// Recent returns the last limit events in original append order. A
// non-positive limit returns everything.
func (s *Store) Recent(limit int) ([]Event, error) {
	events, err := s.readAll()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		return events[len(events)-limit:], nil
	}
	return events, nil
}

// Range returns events whose timestamp falls within [from, to] inclusive.
// Events with unparseable timestamps are skipped.
func (s *Store) Range(from, to time.Time) ([]Event, error) {
	events, err := s.readAll()
	if err != nil {
		return nil, err
	}

	var out []Event
	for _, ev := range events {
		ts, ok := parseTimestamp(ev.TimestampISO)
		if !ok {
			continue
		}
		if !ts.Before(from) && !ts.After(to) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Context returns up to limit most-recent events within the trailing
// windowMinutes, projected down to prompt-context essentials and ordered
// oldest to newest.
func (s *Store) Context(windowMinutes, limit int) (ContextWindow, error) {
	result := ContextWindow{WindowMinutes: windowMinutes, Limit: limit}

	events, err := s.readAll()
	if err != nil {
		return result, err
	}

	cutoff := s.now().UTC().Add(-time.Duration(windowMinutes) * time.Minute)

	var selected []ContextEvent
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		ts, ok := parseTimestamp(ev.TimestampISO)
		if !ok {
			continue
		}
		if ts.Before(cutoff) {
			continue
		}
		selected = append(selected, ContextEvent{
			TimestampISO:   ev.TimestampISO,
			DurationMS:     ev.DurationMS,
			FramesCount:    ev.FramesCount,
			Description:    ev.Description,
			ConfidenceHint: ev.ConfidenceHint,
		})
		if limit > 0 && len(selected) >= limit {
			break
		}
	}

	// Walked newest-first; present oldest-first.
	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}

	result.Count = len(selected)
	result.Events = selected
	return result, nil
}

// parseTimestamp accepts RFC3339 with or without fractional seconds and a
// trailing Z.
func parseTimestamp(iso string) (time.Time, bool) {
	if iso == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, iso); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
