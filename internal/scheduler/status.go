package scheduler

import (
	"time"

	"github.com/lbruckmann/medispender/internal/catalog"
)

// Per-timeslot completion states.
const (
	StateCompleted = "completed"
	StateOverdue   = "overdue"
	StatePending   = "pending"
)

// SlotStatus describes one timeslot of the current day.
type SlotStatus struct {
	Zeit   string `json:"zeit"`
	Status string `json:"status"`
	FachID string `json:"fach_id"`
}

// NextSlot is the upcoming dispense, today or tomorrow morning.
type NextSlot struct {
	Name  string `json:"name"`
	Zeit  string `json:"zeit"`
	Heute bool   `json:"heute"`
}

// Status is the request-facing device state.
type Status struct {
	Timestamp       time.Time             `json:"timestamp"`
	Wochentag       string                `json:"wochentag"`
	Tageszeiten     map[string]SlotStatus `json:"tageszeiten"`
	NaechsteAusgabe NextSlot              `json:"naechste_ausgabe"`
	AusgabenHeute   []string              `json:"ausgaben_heute"`
}

// Status builds the per-timeslot completed/overdue/pending view for now.
// A slot counts as overdue once its minute has passed without a recorded
// dispense.
func (s *Scheduler) Status(now time.Time) Status {
	weekday := catalog.Weekday(now)
	dispensed := s.history.LoadToday()
	isDispensed := make(map[string]struct{}, len(dispensed))
	for _, id := range dispensed {
		isDispensed[id] = struct{}{}
	}

	nowMinutes := now.Hour()*60 + now.Minute()

	slots := make(map[string]SlotStatus, catalog.SlotsPerDay)
	for _, slot := range catalog.Timeslots() {
		t := s.schedule.Time(slot)
		id := catalog.ID(weekday, slot)

		state := StatePending
		if _, done := isDispensed[id]; done {
			state = StateCompleted
		} else if nowMinutes >= t.Stunde*60+t.Minute {
			state = StateOverdue
		}

		slots[slot.String()] = SlotStatus{
			Zeit:   t.String(),
			Status: state,
			FachID: id,
		}
	}

	return Status{
		Timestamp:       now,
		Wochentag:       catalog.Tage[weekday],
		Tageszeiten:     slots,
		NaechsteAusgabe: s.nextSlot(nowMinutes),
		AusgabenHeute:   dispensed,
	}
}

// nextSlot finds the first slot still ahead of now; past the last slot it
// wraps to tomorrow's morning slot.
func (s *Scheduler) nextSlot(nowMinutes int) NextSlot {
	for _, slot := range catalog.Timeslots() {
		t := s.schedule.Time(slot)
		if nowMinutes < t.Stunde*60+t.Minute {
			return NextSlot{Name: title(slot.String()), Zeit: t.String(), Heute: true}
		}
	}
	t := s.schedule.Time(catalog.Morgens)
	return NextSlot{Name: title(catalog.Morgens.String()), Zeit: t.String(), Heute: false}
}

func title(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
