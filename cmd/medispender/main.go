package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lbruckmann/medispender/internal/actuator"
	"github.com/lbruckmann/medispender/internal/config"
	"github.com/lbruckmann/medispender/internal/confirm"
	"github.com/lbruckmann/medispender/internal/events"
	"github.com/lbruckmann/medispender/internal/history"
	"github.com/lbruckmann/medispender/internal/httpapi"
	"github.com/lbruckmann/medispender/internal/metrics"
	"github.com/lbruckmann/medispender/internal/reminder"
	"github.com/lbruckmann/medispender/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Startup misconfiguration is the only fatal path.
		fmt.Fprintf(os.Stderr, "medispender: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	store := history.NewStore(cfg.Dispenser.HistoryFile, cfg.Dispenser.RetentionDays)
	broadcaster := events.NewBroadcaster()

	// Hardware: GPIO on the Pi, simulation everywhere else.
	var gateway actuator.Gateway
	gpio, err := actuator.NewGPIO(cfg.Dispenser.OpenDuration)
	gpioAvailable := err == nil
	if gpioAvailable {
		gateway = gpio
		defer gpio.Close()
	} else {
		slog.Warn("kein gpio - simulation", "error", err)
		gateway = &actuator.Simulated{OpenDuration: cfg.Dispenser.OpenDuration}
	}

	// Reminders: Telegram when configured, otherwise silently skipped.
	var (
		remind confirm.Reminder = reminder.Noop{}
		notify scheduler.Notifier = reminder.Noop{}
		tg     *reminder.Telegram
	)
	if cfg.TelegramEnabled() {
		tg, err = reminder.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			slog.Error("telegram nicht verfügbar", "error", err)
		} else {
			remind, notify = tg, tg
		}
	} else {
		slog.Warn("kein telegram konfiguriert")
	}

	registry := confirm.NewRegistry(broadcaster, remind, cfg.Timeout(), collector)
	schedule := scheduler.NewSchedule(
		scheduler.SlotTime{Stunde: cfg.Dispenser.MorgensStunde, Minute: cfg.Dispenser.MorgensMinute},
		scheduler.SlotTime{Stunde: cfg.Dispenser.MittagsStunde, Minute: cfg.Dispenser.MittagsMinute},
		scheduler.SlotTime{Stunde: cfg.Dispenser.AbendsStunde, Minute: cfg.Dispenser.AbendsMinute},
	)
	sched := scheduler.New(scheduler.Config{
		Schedule: schedule,
		History:  store,
		Registry: registry,
		Events:   broadcaster,
		Gateway:  gateway,
		Notifier: notify,
		Metrics:  collector,
		Refill: scheduler.RefillSlot{
			Tag:    cfg.Dispenser.Refill.Tag,
			Stunde: cfg.Dispenser.Refill.Stunde,
			Minute: cfg.Dispenser.Refill.Minute,
		},
		OpenDuration: cfg.Dispenser.OpenDuration,
	})

	go sched.Run(ctx)
	if tg != nil {
		go tg.Run(ctx, registry)
	}

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Scheduler:     sched,
		Schedule:      schedule,
		Registry:      registry,
		Events:        broadcaster,
		Metrics:       collector,
		PromRegistry:  promRegistry,
		GPIOAvailable: gpioAvailable,
		Debug:         cfg.Dispenser.Debug,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		slog.Info("medispender läuft",
			"addr", addr,
			"raspi", gpioAvailable,
			"debug", cfg.Dispenser.Debug,
			"telegram", tg != nil,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("fahre herunter")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}

	// Cancel pending timers before tearing down the broadcaster so no
	// timeout fires into a closed hub.
	registry.Shutdown()
	broadcaster.Close()
}

func setupLogger(cfg *config.Config) {
	level := parseLevel(cfg.Log.Level)
	if cfg.Dispenser.Debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
