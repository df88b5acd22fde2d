package server

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// runLogEntry is one captured log line. RunID and Source are lifted out of
// the logrus fields so entries can be selected per run and per source.
type runLogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	RunID     string                 `json:"runId,omitempty"`
	Source    string                 `json:"source,omitempty"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`

	level logrus.Level
}

// runLogFilter selects entries from the store. Zero values match everything.
// level keeps entries at that severity or worse.
type runLogFilter struct {
	runID  string
	source string
	level  logrus.Level
	limit  int
}

func parseRunLogFilter(runID, source, level, limit string) (runLogFilter, error) {
	f := runLogFilter{runID: runID, source: source, level: logrus.TraceLevel}
	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return f, err
		}
		f.level = lvl
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid limit %q", limit)
		}
		f.limit = n
	}
	return f, nil
}

func (f runLogFilter) match(e runLogEntry) bool {
	if f.runID != "" && e.RunID != f.runID {
		return false
	}
	if f.source != "" && e.Source != f.source {
		return false
	}
	return e.level <= f.level
}

// runLogStore is a logrus hook that keeps the last entries of the run
// pipeline for /api/v1/logs.
type runLogStore struct {
	mu       sync.RWMutex
	entries  []runLogEntry
	capacity int
	enabled  atomic.Bool
}

func newRunLogStore(capacity int) *runLogStore {
	if capacity <= 0 {
		capacity = 200
	}
	s := &runLogStore{capacity: capacity}
	s.enabled.Store(true)
	return s
}

func (s *runLogStore) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s *runLogStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}

	e := runLogEntry{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
		level:     entry.Level,
	}
	for k, v := range entry.Data {
		switch k {
		case "run_id":
			e.RunID = fmt.Sprint(v)
			continue
		case "source":
			e.Source = fmt.Sprint(v)
			continue
		case "component":
			e.Component = fmt.Sprint(v)
			continue
		}
		if e.Fields == nil {
			e.Fields = make(map[string]interface{}, len(entry.Data))
		}
		switch val := v.(type) {
		case error:
			e.Fields[k] = val.Error()
		case fmt.Stringer:
			e.Fields[k] = val.String()
		default:
			e.Fields[k] = val
		}
	}

	s.mu.Lock()
	s.entries = append(s.entries, e)
	if over := len(s.entries) - s.capacity; over > 0 {
		s.entries = append([]runLogEntry(nil), s.entries[over:]...)
	}
	s.mu.Unlock()
	return nil
}

// query returns matching entries oldest first. A positive limit keeps the
// newest limit matches.
func (s *runLogStore) query(f runLogFilter) []runLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]runLogEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if f.match(e) {
			out = append(out, e)
		}
	}
	if f.limit > 0 && len(out) > f.limit {
		out = out[len(out)-f.limit:]
	}
	return out
}

func (s *runLogStore) close() {
	s.enabled.Store(false)
}
