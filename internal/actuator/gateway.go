// Package actuator drives the compartment relays. The engine only ever sees
// the Gateway interface; the GPIO implementation is used on the Pi and the
// simulated one everywhere else.
package actuator

import (
	"log/slog"
	"time"

	"github.com/lbruckmann/medispender/internal/catalog"
)

// Gateway opens a compartment for a fixed duration and reports success.
// Open blocks for the whole open duration and must leave the compartment
// closed on every path. Concurrent opens of distinct compartments are fine;
// the caller serializes opens of the same compartment.
type Gateway interface {
	Open(fach catalog.Compartment) bool
}

// Simulated is the no-hardware gateway. Opens always succeed; the sleep is
// capped so debugging stays snappy.
type Simulated struct {
	OpenDuration time.Duration
}

const maxSimulatedOpen = 2 * time.Second

func (s *Simulated) Open(fach catalog.Compartment) bool {
	d := s.OpenDuration
	if d > maxSimulatedOpen {
		d = maxSimulatedOpen
	}
	time.Sleep(d)
	slog.Info("[sim] fach geöffnet", "fach", fach.ID, "pin", fach.Pin)
	return true
}
