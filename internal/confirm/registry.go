// Package confirm tracks pending "please confirm you took this dose"
// requests. Each request carries a cancellable timer; explicit confirmation
// and timeout expiry race for exactly-once resolution under the registry
// lock.
package confirm

import (
	"encoding/hex"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lbruckmann/medispender/internal/catalog"
	"github.com/lbruckmann/medispender/internal/events"
	"github.com/lbruckmann/medispender/internal/metrics"
)

// Reminder is the escalation channel notified when a confirmation expires.
// Delivery is fire-and-forget.
type Reminder interface {
	SendReminder(confirmationID string, fach catalog.Compartment)
}

// Pending is the snapshot shape returned by ListPending.
type Pending struct {
	ID        string              `json:"id"`
	Fach      catalog.Compartment `json:"fach"`
	CreatedAt time.Time           `json:"timestamp"`
}

// RequiredPayload is the payload of a confirmation_required event.
type RequiredPayload struct {
	ConfirmationID string              `json:"confirmation_id"`
	Fach           catalog.Compartment `json:"fach"`
	TimeoutSeconds int                 `json:"timeout_seconds"`
}

// ResolvedPayload is the payload of a confirmed event.
type ResolvedPayload struct {
	ConfirmationID string              `json:"confirmation_id"`
	Fach           catalog.Compartment `json:"fach"`
	Source         string              `json:"source"`
}

// TimeoutPayload is the payload of a confirmation_timeout event.
type TimeoutPayload struct {
	ConfirmationID string              `json:"confirmation_id"`
	Fach           catalog.Compartment `json:"fach"`
}

type entry struct {
	fach      catalog.Compartment
	createdAt time.Time
	timer     *time.Timer
}

// Registry owns the full lifecycle of confirmations: Pending until either
// an explicit confirm or the timeout wins the removal; both transitions are
// terminal.
type Registry struct {
	broadcaster *events.Broadcaster
	reminder    Reminder
	timeout     time.Duration
	collector   *metrics.Collector

	mu      sync.Mutex
	pending map[string]*entry
}

// NewRegistry returns a registry publishing on b and escalating expired
// confirmations via r. timeout applies to every confirmation created.
func NewRegistry(b *events.Broadcaster, r Reminder, timeout time.Duration, c *metrics.Collector) *Registry {
	return &Registry{
		broadcaster: b,
		reminder:    r,
		timeout:     timeout,
		collector:   c,
		pending:     make(map[string]*entry),
	}
}

// Create registers a new pending confirmation for a dispensed compartment
// and returns its token. A confirmation_required event is published; the
// timeout timer runs independently. Never blocks on the timer.
func (r *Registry) Create(fach catalog.Compartment) string {
	id := newID()
	e := &entry{fach: fach, createdAt: time.Now()}

	r.mu.Lock()
	r.pending[id] = e
	e.timer = time.AfterFunc(r.timeout, func() { r.expire(id) })
	r.mu.Unlock()

	r.collector.RecordConfirmationCreated()
	r.broadcaster.Publish(events.TypeConfirmationRequired, RequiredPayload{
		ConfirmationID: id,
		Fach:           fach,
		TimeoutSeconds: int(r.timeout.Seconds()),
	})
	slog.Info("warte auf bestätigung", "fach", fach.ID, "confirmation_id", id)
	return id
}

// Confirm resolves a pending confirmation. Whichever of confirm and timeout
// runs first wins the removal; the loser observes "gibt es nicht". The
// returned message is user-facing.
func (r *Registry) Confirm(id, source string) (bool, string) {
	r.mu.Lock()
	e, ok := r.pending[id]
	if !ok {
		r.mu.Unlock()
		return false, "gibt es nicht"
	}
	delete(r.pending, id)
	r.mu.Unlock()

	e.timer.Stop()

	r.collector.RecordConfirmed(source)
	r.broadcaster.Publish(events.TypeConfirmed, ResolvedPayload{
		ConfirmationID: id,
		Fach:           e.fach,
		Source:         source,
	})
	slog.Info("bestätigung erhalten", "fach", e.fach.ID, "source", source)
	return true, "ok"
}

// expire is the timer callback. If Confirm already won the race the entry is
// gone and this is a silent no-op.
func (r *Registry) expire(id string) {
	r.mu.Lock()
	e, ok := r.pending[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.pending, id)
	r.mu.Unlock()

	r.collector.RecordTimeout()
	slog.Warn("bestätigung abgelaufen", "fach", e.fach.ID, "confirmation_id", id)
	r.broadcaster.Publish(events.TypeConfirmationTimeout, TimeoutPayload{
		ConfirmationID: id,
		Fach:           e.fach,
	})
	r.reminder.SendReminder(id, e.fach)
}

// ListPending returns a snapshot of all pending confirmations, oldest first.
func (r *Registry) ListPending() []Pending {
	r.mu.Lock()
	out := make([]Pending, 0, len(r.pending))
	for id, e := range r.pending {
		out = append(out, Pending{ID: id, Fach: e.fach, CreatedAt: e.createdAt})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Shutdown cancels all pending timers so none fires against a torn-down
// broadcaster.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.pending {
		e.timer.Stop()
		delete(r.pending, id)
	}
}

// newID returns a short opaque token (8 hex chars).
func newID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:4])
}
