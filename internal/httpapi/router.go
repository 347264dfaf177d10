// Package httpapi exposes the dispenser to the touchscreen frontend: status
// and history queries, manual triggers, confirmation acknowledgment, runtime
// schedule tuning and the live SSE event stream.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lbruckmann/medispender/internal/confirm"
	"github.com/lbruckmann/medispender/internal/events"
	"github.com/lbruckmann/medispender/internal/metrics"
	"github.com/lbruckmann/medispender/internal/scheduler"
)

// RouterConfig groups dependencies for the API router.
type RouterConfig struct {
	Scheduler     *scheduler.Scheduler
	Schedule      *scheduler.Schedule
	Registry      *confirm.Registry
	Events        *events.Broadcaster
	Metrics       *metrics.Collector
	PromRegistry  *prometheus.Registry
	GPIOAvailable bool
	Debug         bool
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	h := &handlers{
		scheduler:     cfg.Scheduler,
		schedule:      cfg.Schedule,
		registry:      cfg.Registry,
		events:        cfg.Events,
		metrics:       cfg.Metrics,
		validate:      newValidator(),
		gpioAvailable: cfg.GPIOAvailable,
		debug:         cfg.Debug,
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.PromRegistry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.PromRegistry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	{
		api.GET("", h.apiInfo)
		api.GET("/status", h.status)
		api.GET("/ausgaben", h.ausgaben)
		api.POST("/fach/:nr/open", h.openFach)
		api.GET("/events", h.eventStream)
		api.POST("/confirm/:id", h.confirmWeb)
		api.GET("/confirmations", h.confirmations)
		api.POST("/test/notification", h.testNotification)

		debug := api.Group("/debug")
		{
			debug.GET("/status", h.debugStatus)
			debug.GET("/zeiten", h.getZeiten)
			debug.POST("/zeiten", h.setZeiten)
			debug.POST("/trigger/:tag", h.triggerZeit)
			debug.POST("/trigger/:tag/:zeit", h.triggerFach)
		}
	}

	return r
}

// corsMiddleware allows any origin; the frontend runs on the same box but
// development servers do not.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
