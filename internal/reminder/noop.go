package reminder

import (
	"github.com/lbruckmann/medispender/internal/catalog"
)

// Noop is used when Telegram is not configured. Reminders are silently
// skipped; the rest of the engine is unaffected.
type Noop struct{}

func (Noop) Opened(catalog.Compartment) {}

func (Noop) SendReminder(string, catalog.Compartment) {}
