package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbruckmann/medispender/internal/catalog"
	"github.com/lbruckmann/medispender/internal/confirm"
	"github.com/lbruckmann/medispender/internal/events"
	"github.com/lbruckmann/medispender/internal/metrics"
)

// 2026-08-31 is a Monday.
var (
	monMorgens = time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	sunRefill  = time.Date(2026, 9, 6, 20, 0, 0, 0, time.UTC)
)

type fakeGateway struct {
	mu    sync.Mutex
	opens []int
	fail  bool
	block chan struct{} // when set, Open waits for it to close
}

func (g *fakeGateway) Open(fach catalog.Compartment) bool {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	g.opens = append(g.opens, fach.Index)
	g.mu.Unlock()
	return !g.fail
}

func (g *fakeGateway) opened() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.opens...)
}

type fakeHistory struct {
	mu      sync.Mutex
	records []string
}

func (h *fakeHistory) LoadToday() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.records...)
}

func (h *fakeHistory) RecordDispensed(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r == id {
			return
		}
	}
	h.records = append(h.records, id)
}

type fakeNotifier struct {
	mu     sync.Mutex
	opened []string
}

func (n *fakeNotifier) Opened(fach catalog.Compartment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.opened = append(n.opened, fach.ID)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.opened)
}

type nopReminder struct{}

func (nopReminder) SendReminder(string, catalog.Compartment) {}

type schedEnv struct {
	sched       *Scheduler
	gateway     *fakeGateway
	history     *fakeHistory
	notifier    *fakeNotifier
	broadcaster *events.Broadcaster
	registry    *confirm.Registry
}

func newEnv(t *testing.T) *schedEnv {
	t.Helper()
	b := events.NewBroadcaster()
	collector := metrics.NewCollector(prometheus.NewRegistry())
	env := &schedEnv{
		gateway:     &fakeGateway{},
		history:     &fakeHistory{},
		notifier:    &fakeNotifier{},
		broadcaster: b,
		registry:    confirm.NewRegistry(b, nopReminder{}, time.Minute, collector),
	}
	env.sched = New(Config{
		Schedule: NewSchedule(
			SlotTime{Stunde: 8, Minute: 0},
			SlotTime{Stunde: 12, Minute: 0},
			SlotTime{Stunde: 18, Minute: 0},
		),
		History:  env.history,
		Registry: env.registry,
		Events:   b,
		Gateway:  env.gateway,
		Notifier: env.notifier,
		Metrics:  collector,
		Refill:   RefillSlot{Tag: 6, Stunde: 20, Minute: 0},
	})
	return env
}

// nextEvent reads one real event, skipping the synthetic connected.
func nextEvent(t *testing.T, sub *events.Subscription) events.Event {
	t.Helper()
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		ev, err := sub.Next(ctx)
		cancel()
		require.NoError(t, err)
		if ev.Type == events.TypeConnected {
			continue
		}
		return ev
	}
}

func assertNoEvent(t *testing.T, sub *events.Subscription) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ev, err := sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "unexpected event %q", ev.Type)
}

func TestTickDispensesDueSlot(t *testing.T) {
	env := newEnv(t)
	sub := env.broadcaster.Subscribe()

	env.sched.tick(monMorgens)

	assert.Equal(t, []int{0}, env.gateway.opened())
	assert.Equal(t, []string{"Mo_morgens"}, env.history.LoadToday())
	assert.Equal(t, 1, env.notifier.count())
	assert.Len(t, env.registry.ListPending(), 1)

	ev := nextEvent(t, sub)
	require.Equal(t, events.TypeFachOpening, ev.Type)
	opening, ok := ev.Data.(OpeningPayload)
	require.True(t, ok)
	assert.Equal(t, "Mo_morgens", opening.Fach.ID)

	ev = nextEvent(t, sub)
	require.Equal(t, events.TypeFachClosed, ev.Type)
	closed, ok := ev.Data.(ClosedPayload)
	require.True(t, ok)
	assert.True(t, closed.Success)
	assert.Equal(t, "ok", closed.Message)

	ev = nextEvent(t, sub)
	assert.Equal(t, events.TypeConfirmationRequired, ev.Type)
}

func TestTickSameMinuteOnlyOnce(t *testing.T) {
	env := newEnv(t)

	env.sched.tick(monMorgens)
	env.sched.tick(monMorgens.Add(time.Second))
	env.sched.tick(monMorgens.Add(30 * time.Second))

	assert.Equal(t, []int{0}, env.gateway.opened())
}

func TestTickSkipsAlreadyDispensed(t *testing.T) {
	env := newEnv(t)
	env.history.RecordDispensed("Mo_morgens")

	env.sched.tick(monMorgens)

	assert.Empty(t, env.gateway.opened())
	assert.Len(t, env.registry.ListPending(), 0)
}

func TestTickNoMatchOutsideSlots(t *testing.T) {
	env := newEnv(t)

	env.sched.tick(monMorgens.Add(time.Minute))
	env.sched.tick(time.Date(2026, 8, 31, 15, 30, 0, 0, time.UTC))

	assert.Empty(t, env.gateway.opened())
}

func TestTickDateRollover(t *testing.T) {
	env := newEnv(t)

	env.sched.tick(monMorgens)
	env.sched.tick(monMorgens.AddDate(0, 0, 1)) // Dienstag 08:00

	assert.Equal(t, []int{0, 3}, env.gateway.opened())
	assert.ElementsMatch(t, []string{"Mo_morgens", "Di_morgens"}, env.history.LoadToday())
}

func TestRefillReminderFiresOncePerDay(t *testing.T) {
	env := newEnv(t)
	sub := env.broadcaster.Subscribe()

	env.sched.tick(sunRefill)
	env.sched.tick(sunRefill.Add(time.Second))
	env.sched.tick(sunRefill.Add(45 * time.Second))

	ev := nextEvent(t, sub)
	require.Equal(t, events.TypeNotification, ev.Type)
	payload, ok := ev.Data.(events.NotificationPayload)
	require.True(t, ok)
	assert.Equal(t, "Box für nächste Woche befüllen!", payload.Message)
	assert.Equal(t, "warning", payload.Type)

	assertNoEvent(t, sub)
	assert.Empty(t, env.gateway.opened())
}

func TestRefillReminderRearmsNextDay(t *testing.T) {
	env := newEnv(t)
	env.sched.refill = RefillSlot{Tag: 0, Stunde: 20, Minute: 0}
	sub := env.broadcaster.Subscribe()

	env.sched.tick(time.Date(2026, 8, 31, 20, 0, 0, 0, time.UTC))
	ev := nextEvent(t, sub)
	require.Equal(t, events.TypeNotification, ev.Type)

	// One week later the flag was reset by the date rollovers in between.
	env.sched.tick(time.Date(2026, 9, 7, 20, 0, 0, 0, time.UTC))
	ev = nextEvent(t, sub)
	assert.Equal(t, events.TypeNotification, ev.Type)
}

func TestDispenseActuatorFailure(t *testing.T) {
	env := newEnv(t)
	env.gateway.fail = true
	sub := env.broadcaster.Subscribe()

	err := env.sched.Dispense(0, true)
	require.ErrorIs(t, err, ErrActuatorFailure)

	assert.Empty(t, env.history.LoadToday())
	assert.Empty(t, env.registry.ListPending())
	assert.Zero(t, env.notifier.count())

	_ = nextEvent(t, sub) // fach_opening
	ev := nextEvent(t, sub)
	require.Equal(t, events.TypeFachClosed, ev.Type)
	closed, ok := ev.Data.(ClosedPayload)
	require.True(t, ok)
	assert.False(t, closed.Success)
	assert.Equal(t, "fehler", closed.Message)

	// The failed open left no dedupe mark behind, a retry succeeds.
	env.gateway.fail = false
	require.NoError(t, env.sched.Dispense(0, true))
	assert.Equal(t, []string{"Mo_morgens"}, env.history.LoadToday())
}

func TestDispenseConcurrentSameCompartment(t *testing.T) {
	env := newEnv(t)
	env.gateway.block = make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- env.sched.Dispense(0, true) }()

	require.Eventually(t, func() bool {
		return errors.Is(env.sched.Dispense(0, false), ErrCompartmentBusy)
	}, time.Second, 5*time.Millisecond)

	close(env.gateway.block)
	require.NoError(t, <-errc)
	assert.Equal(t, []int{0}, env.gateway.opened())
}

func TestDispenseUnknownCompartment(t *testing.T) {
	env := newEnv(t)

	err := env.sched.Dispense(catalog.NumCompartments, true)
	assert.ErrorIs(t, err, catalog.ErrUnknownCompartment)
	assert.Empty(t, env.gateway.opened())
}

func TestDispenseWithoutRecord(t *testing.T) {
	env := newEnv(t)

	require.NoError(t, env.sched.Dispense(5, false))

	assert.Equal(t, []int{5}, env.gateway.opened())
	assert.Empty(t, env.history.LoadToday())
	assert.Len(t, env.registry.ListPending(), 1)
	assert.Equal(t, 1, env.notifier.count())
}

func TestStatusSlotStates(t *testing.T) {
	env := newEnv(t)
	env.history.RecordDispensed("Mo_morgens")

	st := env.sched.Status(time.Date(2026, 8, 31, 13, 0, 0, 0, time.UTC))

	assert.Equal(t, "Montag", st.Wochentag)
	assert.Equal(t, StateCompleted, st.Tageszeiten["morgens"].Status)
	assert.Equal(t, StateOverdue, st.Tageszeiten["mittags"].Status)
	assert.Equal(t, StatePending, st.Tageszeiten["abends"].Status)
	assert.Equal(t, "Mo_abends", st.Tageszeiten["abends"].FachID)
	assert.Equal(t, []string{"Mo_morgens"}, st.AusgabenHeute)

	assert.Equal(t, "Abends", st.NaechsteAusgabe.Name)
	assert.Equal(t, "18:00", st.NaechsteAusgabe.Zeit)
	assert.True(t, st.NaechsteAusgabe.Heute)
}

func TestStatusNextSlotWrapsToTomorrow(t *testing.T) {
	env := newEnv(t)

	st := env.sched.Status(time.Date(2026, 8, 31, 19, 30, 0, 0, time.UTC))

	assert.Equal(t, "Morgens", st.NaechsteAusgabe.Name)
	assert.Equal(t, "08:00", st.NaechsteAusgabe.Zeit)
	assert.False(t, st.NaechsteAusgabe.Heute)
}

func TestScheduleSetTime(t *testing.T) {
	s := NewSchedule(
		SlotTime{Stunde: 8, Minute: 0},
		SlotTime{Stunde: 12, Minute: 0},
		SlotTime{Stunde: 18, Minute: 0},
	)

	s.SetTime(catalog.Mittags, SlotTime{Stunde: 13, Minute: 15})

	assert.Equal(t, "13:15", s.Time(catalog.Mittags).String())
	times := s.Times()
	assert.Equal(t, SlotTime{Stunde: 13, Minute: 15}, times[catalog.Mittags])
	assert.Equal(t, SlotTime{Stunde: 8, Minute: 0}, times[catalog.Morgens])
}

func TestRunStopsOnContextCancel(t *testing.T) {
	env := newEnv(t)
	env.sched.pollInterval = 5 * time.Millisecond
	env.sched.nowFunc = func() time.Time { return monMorgens.Add(time.Minute) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.sched.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
