package actuator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/lbruckmann/medispender/internal/catalog"
)

// Relays are active low: Low = on (open), High = off (closed).

// GPIO drives the relay board through the Pi's memory-mapped GPIO.
type GPIO struct {
	openDuration time.Duration
}

// NewGPIO maps the GPIO registers and forces every relay pin into its
// closed state. Fails when not running on a Pi; callers fall back to the
// Simulated gateway then.
func NewGPIO(openDuration time.Duration) (*GPIO, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("gpio open: %w", err)
	}
	for _, p := range catalog.Pins() {
		pin := rpio.Pin(p)
		pin.Output()
		pin.High()
	}
	return &GPIO{openDuration: openDuration}, nil
}

// Open energizes the compartment's relay for the configured duration. The
// deferred High guarantees the relay is released on every path.
func (g *GPIO) Open(fach catalog.Compartment) bool {
	pin := rpio.Pin(fach.Pin)
	pin.Low()
	defer pin.High()

	time.Sleep(g.openDuration)
	slog.Info("fach geöffnet", "fach", fach.ID, "pin", fach.Pin)
	return true
}

// Close releases all relays and unmaps the GPIO registers.
func (g *GPIO) Close() {
	for _, p := range catalog.Pins() {
		rpio.Pin(p).High()
	}
	if err := rpio.Close(); err != nil {
		slog.Error("gpio close", "error", err)
	}
}
