package scheduler

import (
	"fmt"
	"sync"

	"github.com/lbruckmann/medispender/internal/catalog"
)

// SlotTime is a wall-clock dispense time.
type SlotTime struct {
	Stunde int `json:"stunde"`
	Minute int `json:"minute"`
}

func (t SlotTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Stunde, t.Minute)
}

// Schedule holds the runtime dispense times. The scheduler reads it every
// tick while the API may rewrite it concurrently, so access is RW-locked.
// Changes are not persisted; defaults reload from config on restart.
type Schedule struct {
	mu    sync.RWMutex
	times map[catalog.Timeslot]SlotTime
}

// NewSchedule builds a schedule from the three configured slot times.
func NewSchedule(morgens, mittags, abends SlotTime) *Schedule {
	return &Schedule{
		times: map[catalog.Timeslot]SlotTime{
			catalog.Morgens: morgens,
			catalog.Mittags: mittags,
			catalog.Abends:  abends,
		},
	}
}

// Time returns the configured time of one slot.
func (s *Schedule) Time(slot catalog.Timeslot) SlotTime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.times[slot]
}

// SetTime retunes one slot.
func (s *Schedule) SetTime(slot catalog.Timeslot, t SlotTime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times[slot] = t
}

// Times returns a copy of all slot times.
func (s *Schedule) Times() map[catalog.Timeslot]SlotTime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[catalog.Timeslot]SlotTime, len(s.times))
	for slot, t := range s.times {
		out[slot] = t
	}
	return out
}
