package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/lbruckmann/medispender/internal/catalog"
	"github.com/lbruckmann/medispender/internal/confirm"
	"github.com/lbruckmann/medispender/internal/events"
	"github.com/lbruckmann/medispender/internal/metrics"
	"github.com/lbruckmann/medispender/internal/scheduler"
)

type handlers struct {
	scheduler     *scheduler.Scheduler
	schedule      *scheduler.Schedule
	registry      *confirm.Registry
	events        *events.Broadcaster
	metrics       *metrics.Collector
	validate      *validatorv10.Validate
	gpioAvailable bool
	debug         bool
}

func (h *handlers) apiInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"name": "MediSpender", "v": "2", "raspi": h.gpioAvailable})
}

func (h *handlers) debugStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "debug_mode": h.debug})
}

func (h *handlers) status(c *gin.Context) {
	st := h.scheduler.Status(time.Now())
	c.JSON(http.StatusOK, gin.H{
		"ok":               true,
		"timestamp":        st.Timestamp,
		"wochentag":        st.Wochentag,
		"gpio_available":   h.gpioAvailable,
		"tageszeiten":      st.Tageszeiten,
		"naechste_ausgabe": st.NaechsteAusgabe,
		"ausgaben_heute":   st.AusgabenHeute,
	})
}

func (h *handlers) ausgaben(c *gin.Context) {
	st := h.scheduler.Status(time.Now())
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"datum":    st.Timestamp.Format("2006-01-02"),
		"ausgaben": st.AusgabenHeute,
	})
}

// openFach triggers a compartment by index. The open runs on its own
// goroutine; the response only acknowledges the trigger.
func (h *handlers) openFach(c *gin.Context) {
	nr, err := strconv.Atoi(c.Param("nr"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "0-20"})
		return
	}
	fach, err := catalog.ByIndex(nr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "0-20"})
		return
	}

	go h.dispense(nr, true)
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "öffne...", "fach": fach})
}

func (h *handlers) confirmWeb(c *gin.Context) {
	ok, message := h.registry.Confirm(c.Param("id"), "web")
	c.JSON(http.StatusOK, gin.H{"ok": ok, "message": message})
}

func (h *handlers) confirmations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "pending": h.registry.ListPending()})
}

func (h *handlers) testNotification(c *gin.Context) {
	var req notificationRequest
	// Body is optional for this test hook; defaults apply.
	_ = c.ShouldBindJSON(&req)
	if err := h.validate.Struct(req); err != nil {
		writeValidationError(c, err)
		return
	}
	if req.Message == "" {
		req.Message = "test"
	}
	if req.Type == "" {
		req.Type = "info"
	}
	h.events.Publish(events.TypeNotification, events.NotificationPayload{
		Message: req.Message,
		Type:    req.Type,
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *handlers) getZeiten(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "zeiten": zeitenResponse(h.schedule)})
}

func (h *handlers) setZeiten(c *gin.Context) {
	var req zeitenRequest
	if err := bindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	for slot, t := range req.slots() {
		h.schedule.SetTime(slot, scheduler.SlotTime{Stunde: t.Stunde, Minute: t.Minute})
	}
	h.events.Publish(events.TypeNotification, events.NotificationPayload{
		Message: "zeiten geändert",
		Type:    "warning",
	})
	c.JSON(http.StatusOK, gin.H{"ok": true, "zeiten": zeitenResponse(h.schedule)})
}

// triggerZeit opens today's compartment for a timeslot, honoring the per-day
// dedupe bookkeeping.
func (h *handlers) triggerZeit(c *gin.Context) {
	slot, err := catalog.ParseTimeslot(c.Param("tag"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "falsch"})
		return
	}
	nr := catalog.Index(catalog.Weekday(time.Now()), slot)
	fach, _ := catalog.ByIndex(nr)

	go h.dispense(nr, true)
	c.JSON(http.StatusOK, gin.H{"ok": true, "fach": fach})
}

// triggerFach opens an arbitrary weekday+timeslot compartment without
// recording it (admin override).
func (h *handlers) triggerFach(c *gin.Context) {
	tag, err := catalog.ParseTag(c.Param("tag"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "tag falsch"})
		return
	}
	slot, err := catalog.ParseTimeslot(c.Param("zeit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "zeit falsch"})
		return
	}
	nr := catalog.Index(tag, slot)
	fach, _ := catalog.ByIndex(nr)

	go h.dispense(nr, false)
	c.JSON(http.StatusOK, gin.H{"ok": true, "fach": fach})
}

func (h *handlers) dispense(nr int, record bool) {
	if err := h.scheduler.Dispense(nr, record); err != nil &&
		!errors.Is(err, scheduler.ErrActuatorFailure) {
		// Actuator failures already surface as a fach_closed event.
		h.events.Publish(events.TypeNotification, events.NotificationPayload{
			Message: err.Error(),
			Type:    "error",
		})
	}
}
