// Package catalog holds the static compartment layout of the dispenser:
// 7 weekdays x 3 timeslots, each mapped to one GPIO pin. The layout is fixed
// at compile time and never mutated.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Timeslot is one of the three daily dispense times.
type Timeslot int

const (
	Morgens Timeslot = iota
	Mittags
	Abends
)

var slotNames = [...]string{"morgens", "mittags", "abends"}

// SlotsPerDay is the number of timeslots per weekday.
const SlotsPerDay = len(slotNames)

func (t Timeslot) String() string {
	if t < 0 || int(t) >= SlotsPerDay {
		return fmt.Sprintf("Timeslot(%d)", int(t))
	}
	return slotNames[t]
}

// Timeslots returns all timeslots in dispense order.
func Timeslots() []Timeslot {
	return []Timeslot{Morgens, Mittags, Abends}
}

// ParseTimeslot maps a timeslot name ("morgens", "mittags", "abends") to its
// Timeslot value.
func ParseTimeslot(s string) (Timeslot, error) {
	for i, name := range slotNames {
		if name == strings.ToLower(s) {
			return Timeslot(i), nil
		}
	}
	return 0, fmt.Errorf("%w: timeslot %q", ErrUnknownCompartment, s)
}

// Weekday names, index 0 = Montag like the rest of the device.
var (
	Tage     = [...]string{"Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Samstag", "Sonntag"}
	TageKurz = [...]string{"Mo", "Di", "Mi", "Do", "Fr", "Sa", "So"}
)

var tagAliases = map[string]int{
	"mo": 0, "montag": 0,
	"di": 1, "dienstag": 1,
	"mi": 2, "mittwoch": 2,
	"do": 3, "donnerstag": 3,
	"fr": 4, "freitag": 4,
	"sa": 5, "samstag": 5,
	"so": 6, "sonntag": 6,
}

// ParseTag maps a German weekday name (short or long, case-insensitive) to
// its index (0 = Montag).
func ParseTag(s string) (int, error) {
	if tag, ok := tagAliases[strings.ToLower(s)]; ok {
		return tag, nil
	}
	return 0, fmt.Errorf("%w: weekday %q", ErrUnknownCompartment, s)
}

// Relay pins per weekday, morgens/mittags/abends order. BCM numbering,
// active low.
var pins = [...]int{
	2, 3, 4, // Montag
	21, 27, 22, // Dienstag
	10, 9, 11, // Mittwoch
	0, 5, 6, // Donnerstag
	13, 19, 14, // Freitag
	15, 18, 23, // Samstag
	16, 20, 26, // Sonntag
}

// NumCompartments is the total number of physical compartments.
const NumCompartments = len(pins)

// ErrUnknownCompartment is returned for indexes or names outside the catalog.
var ErrUnknownCompartment = errors.New("unknown compartment")

// Compartment describes one physical dose slot. The JSON shape is what event
// payloads and API responses carry.
type Compartment struct {
	Index         int    `json:"index"`
	Wochentag     string `json:"wochentag"`
	WochentagKurz string `json:"wochentag_kurz"`
	Tageszeit     string `json:"tageszeit"`
	Pin           int    `json:"gpio_pin"`
	ID            string `json:"id"`
}

// Index computes the compartment index for a weekday and timeslot.
func Index(weekday int, slot Timeslot) int {
	return weekday*SlotsPerDay + int(slot)
}

// ID builds the compartment identity string, e.g. "Mo_morgens".
func ID(weekday int, slot Timeslot) string {
	return TageKurz[weekday] + "_" + slot.String()
}

// ByIndex resolves a compartment index to its full descriptor.
func ByIndex(nr int) (Compartment, error) {
	if nr < 0 || nr >= NumCompartments {
		return Compartment{}, fmt.Errorf("%w: index %d", ErrUnknownCompartment, nr)
	}
	tag := nr / SlotsPerDay
	slot := Timeslot(nr % SlotsPerDay)
	return Compartment{
		Index:         nr,
		Wochentag:     Tage[tag],
		WochentagKurz: TageKurz[tag],
		Tageszeit:     slot.String(),
		Pin:           pins[nr],
		ID:            ID(tag, slot),
	}, nil
}

// Weekday converts a time.Time to the catalog weekday index (0 = Montag).
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Pins returns all relay pins, in compartment-index order.
func Pins() []int {
	out := make([]int, NumCompartments)
	copy(out, pins[:])
	return out
}
