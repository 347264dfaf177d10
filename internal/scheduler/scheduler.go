// Package scheduler runs the dispense control loop: once per second it
// decides whether the weekly refill reminder or a scheduled dispense is due
// and orchestrates actuator, history, confirmations and events.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lbruckmann/medispender/internal/actuator"
	"github.com/lbruckmann/medispender/internal/catalog"
	"github.com/lbruckmann/medispender/internal/confirm"
	"github.com/lbruckmann/medispender/internal/events"
	"github.com/lbruckmann/medispender/internal/metrics"
)

const (
	dateLayout   = "2006-01-02"
	minuteLayout = "2006-01-02 15:04"
)

var (
	// ErrCompartmentBusy means the compartment is already being opened.
	ErrCompartmentBusy = errors.New("compartment already opening")
	// ErrActuatorFailure means the hardware reported a failed open. The
	// compartment stays unrecorded and no confirmation is created.
	ErrActuatorFailure = errors.New("actuator reported failure")
)

// Notifier receives a push when a compartment opened successfully.
type Notifier interface {
	Opened(fach catalog.Compartment)
}

// History is the dispense log the scheduler consults and writes.
type History interface {
	LoadToday() []string
	RecordDispensed(id string)
}

// RefillSlot is the weekly refill reminder time: weekday (0 = Montag) plus
// wall-clock minute.
type RefillSlot struct {
	Tag    int
	Stunde int
	Minute int
}

// OpeningPayload is the payload of a fach_opening event.
type OpeningPayload struct {
	Fach  catalog.Compartment `json:"fach"`
	Dauer int                 `json:"dauer"`
}

// ClosedPayload is the payload of a fach_closed event.
type ClosedPayload struct {
	Fach    catalog.Compartment `json:"fach"`
	Success bool                `json:"success"`
	Message string              `json:"message"`
}

// Config groups the scheduler's collaborators and settings.
type Config struct {
	Schedule     *Schedule
	History      History
	Registry     *confirm.Registry
	Events       *events.Broadcaster
	Gateway      actuator.Gateway
	Notifier     Notifier
	Metrics      *metrics.Collector
	Refill       RefillSlot
	OpenDuration time.Duration
	PollInterval time.Duration
}

// Scheduler is the top-level control loop.
type Scheduler struct {
	schedule     *Schedule
	history      History
	registry     *confirm.Registry
	events       *events.Broadcaster
	gateway      actuator.Gateway
	notifier     Notifier
	metrics      *metrics.Collector
	refill       RefillSlot
	openDuration time.Duration
	pollInterval time.Duration
	nowFunc      func() time.Time

	mu          sync.Mutex
	day         string              // last-seen calendar date
	dispensed   map[string]struct{} // today's dispensed compartment IDs
	opening     map[int]struct{}    // compartments with an open in flight
	refillFired bool
	lastMatched string // minute key of the last slot match
}

// New builds a scheduler. Day state is loaded lazily on the first tick so
// construction never touches the history file.
func New(cfg Config) *Scheduler {
	interval := cfg.PollInterval
	if interval == 0 {
		interval = time.Second
	}
	return &Scheduler{
		schedule:     cfg.Schedule,
		history:      cfg.History,
		registry:     cfg.Registry,
		events:       cfg.Events,
		gateway:      cfg.Gateway,
		notifier:     cfg.Notifier,
		metrics:      cfg.Metrics,
		refill:       cfg.Refill,
		openDuration: cfg.OpenDuration,
		pollInterval: interval,
		nowFunc:      time.Now,
		dispensed:    make(map[string]struct{}),
		opening:      make(map[int]struct{}),
	}
}

// Run polls until ctx is cancelled. Shutdown is observed within one poll
// interval; an in-flight open is allowed to complete.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler läuft", "interval", s.pollInterval)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler beendet")
			return
		case <-ticker.C:
			s.tick(s.nowFunc())
		}
	}
}

// tick runs one scheduling decision. A slot fires at most once per matched
// minute (last-matched-minute tracking, independent of clock jitter), at
// most once per compartment per day, and the refill reminder at most once
// per day.
func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()

	// Date rollover: reload today's set and re-arm the refill reminder.
	date := now.Format(dateLayout)
	if date != s.day {
		s.day = date
		s.refillFired = false
		s.dispensed = make(map[string]struct{})
		s.mu.Unlock()
		// LoadToday does its own locking; keep the lock order one-way.
		ids := s.history.LoadToday()
		s.mu.Lock()
		for _, id := range ids {
			s.dispensed[id] = struct{}{}
		}
	}

	weekday := catalog.Weekday(now)
	fireRefill := false
	if !s.refillFired &&
		weekday == s.refill.Tag &&
		now.Hour() == s.refill.Stunde &&
		now.Minute() == s.refill.Minute {
		s.refillFired = true
		fireRefill = true
	}

	dispenseNr := -1
	if slot, ok := s.matchSlot(now); ok {
		minuteKey := now.Format(minuteLayout)
		if minuteKey != s.lastMatched {
			s.lastMatched = minuteKey
			if _, done := s.dispensed[catalog.ID(weekday, slot)]; !done {
				dispenseNr = catalog.Index(weekday, slot)
			}
		}
	}
	s.mu.Unlock()

	if fireRefill {
		slog.Info("nachfüll-hinweis fällig")
		s.events.Publish(events.TypeNotification, events.NotificationPayload{
			Message: "Box für nächste Woche befüllen!",
			Type:    "warning",
		})
	}

	if dispenseNr >= 0 {
		if err := s.Dispense(dispenseNr, true); err != nil {
			slog.Error("geplante ausgabe fehlgeschlagen", "fach", dispenseNr, "error", err)
		}
	}
}

// matchSlot reports the timeslot whose configured time matches now exactly
// to the minute.
func (s *Scheduler) matchSlot(now time.Time) (catalog.Timeslot, bool) {
	for _, slot := range catalog.Timeslots() {
		t := s.schedule.Time(slot)
		if now.Hour() == t.Stunde && now.Minute() == t.Minute {
			return slot, true
		}
	}
	return 0, false
}

// Dispense opens one compartment and runs the full sequence: mark dispensed,
// publish opening, run the actuator, publish closed, record to history,
// create the confirmation. record=false is the admin override that neither
// checks nor writes the per-day dedupe. Blocks for the open duration.
func (s *Scheduler) Dispense(nr int, record bool) error {
	fach, err := catalog.ByIndex(nr)
	if err != nil {
		slog.Error("fach gibts nicht", "nr", nr)
		return err
	}

	s.mu.Lock()
	if _, busy := s.opening[nr]; busy {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCompartmentBusy, fach.ID)
	}
	s.opening[nr] = struct{}{}
	// Mark before the open so a concurrent tick in the same minute cannot
	// dispense the compartment twice. Rolled back if the actuator fails.
	marked := false
	if record {
		if _, done := s.dispensed[fach.ID]; !done {
			s.dispensed[fach.ID] = struct{}{}
			marked = true
		}
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.opening, nr)
		s.mu.Unlock()
	}()

	slog.Info("öffne fach", "fach", fach.ID, "wochentag", fach.Wochentag, "tageszeit", fach.Tageszeit)
	s.events.Publish(events.TypeFachOpening, OpeningPayload{
		Fach:  fach,
		Dauer: int(s.openDuration.Seconds()),
	})

	ok := s.gateway.Open(fach)
	s.metrics.RecordDispense(ok)

	message := "ok"
	if !ok {
		message = "fehler"
	}
	s.events.Publish(events.TypeFachClosed, ClosedPayload{
		Fach:    fach,
		Success: ok,
		Message: message,
	})

	if !ok {
		if marked {
			s.mu.Lock()
			delete(s.dispensed, fach.ID)
			s.mu.Unlock()
		}
		return fmt.Errorf("%w: %s", ErrActuatorFailure, fach.ID)
	}

	if record {
		s.history.RecordDispensed(fach.ID)
	}
	s.notifier.Opened(fach)
	s.registry.Create(fach)
	return nil
}
