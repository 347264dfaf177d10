package httpapi

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/lbruckmann/medispender/internal/events"
)

// eventStream serves the live SSE feed. The broadcaster already injects the
// synthetic connected and heartbeat events, so this handler only encodes and
// flushes until the client goes away or the subscription is evicted.
func (h *handlers) eventStream(c *gin.Context) {
	sub := h.events.Subscribe()
	h.metrics.SetSubscribers(h.events.SubscriberCount())
	defer func() {
		h.events.Unsubscribe(sub)
		h.metrics.SetSubscribers(h.events.SubscriberCount())
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			// Client disconnect or slow-consumer eviction; either way, done.
			return
		}
		if !writeEvent(c, ev) {
			return
		}
	}
}

func writeEvent(c *gin.Context, ev events.Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		return true // skip unencodable payload, keep the stream alive
	}
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
		return false
	}
	c.Writer.Flush()
	return true
}
