// Package history persists which compartments were already dispensed per
// calendar date, so the scheduler stays idempotent across restarts within
// the same day.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

// Store is the dispense history. The durable backing is a single JSON file
// mapping ISO date -> list of compartment IDs; entries older than the
// retention window are pruned on every write. When the file is unusable the
// store degrades to an in-memory set for the current run instead of failing.
type Store struct {
	mu            sync.Mutex
	path          string
	retentionDays int

	// fallback holds today's IDs that could not be persisted.
	fallback map[string]struct{}

	nowFunc func() time.Time
}

// NewStore returns a store backed by the JSON file at path.
func NewStore(path string, retentionDays int) *Store {
	return &Store{
		path:          path,
		retentionDays: retentionDays,
		fallback:      make(map[string]struct{}),
		nowFunc:       time.Now,
	}
}

// LoadToday returns the set of compartment IDs dispensed on the current
// calendar date. IDs recorded only in the in-memory fallback are included,
// so a failed write earlier in the run cannot cause a double dispense.
func (s *Store) LoadToday() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.nowFunc().Format(dateLayout)
	seen := make(map[string]struct{})

	data, err := s.read()
	if err != nil {
		slog.Warn("history: durable backing unreadable, using in-memory set", "path", s.path, "error", err)
	} else {
		for _, id := range data[today] {
			seen[id] = struct{}{}
		}
	}
	for id := range s.fallback {
		seen[id] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RecordDispensed idempotently adds a compartment ID to today's set and
// prunes entries older than the retention window as part of the same write.
// On I/O failure the ID is kept in the in-memory fallback instead.
func (s *Store) RecordDispensed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	today := now.Format(dateLayout)

	data, err := s.read()
	if err != nil {
		data = make(map[string][]string)
	}

	if !contains(data[today], id) {
		data[today] = append(data[today], id)
	}

	cutoff := now.AddDate(0, 0, -s.retentionDays).Format(dateLayout)
	for date := range data {
		if date < cutoff {
			delete(data, date)
		}
	}

	if err := s.write(data); err != nil {
		slog.Error("history: persist failed, recording in memory only", "id", id, "error", err)
		s.fallback[id] = struct{}{}
		return
	}
	// Persisted; the fallback copy (if any) is no longer needed.
	delete(s.fallback, id)
}

func (s *Store) read() (map[string][]string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string][]string), nil
	}
	if err != nil {
		return nil, err
	}
	data := make(map[string][]string)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return data, nil
}

func (s *Store) write(data map[string][]string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o644)
}

func contains(ids []string, id string) bool {
	for _, have := range ids {
		if have == id {
			return true
		}
	}
	return false
}
