// Package config loads the device configuration from a YAML file and
// environment variables. Priority: ENV > YAML > defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Dispenser DispenserConfig `yaml:"dispenser"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST" env-default:"127.0.0.1"`
	Port int    `yaml:"port" env:"SERVER_PORT" env-default:"5000"`
}

// TelegramConfig holds the reminder bot credentials. Leaving the token empty
// disables reminders entirely.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `yaml:"chat_id"   env:"TELEGRAM_CHAT_ID"`
}

// RefillConfig is the weekly refill reminder slot (tag: 0 = Montag).
type RefillConfig struct {
	Tag    int `yaml:"tag"    env:"REFILL_TAG"    env-default:"6"`
	Stunde int `yaml:"stunde" env:"REFILL_STUNDE" env-default:"20"`
	Minute int `yaml:"minute" env:"REFILL_MINUTE" env-default:"0"`
}

// DispenserConfig holds the scheduling and hardware settings.
type DispenserConfig struct {
	Debug                    bool          `yaml:"debug"                      env:"DISPENSER_DEBUG"              env-default:"false"`
	ConfirmationTimeout      time.Duration `yaml:"confirmation_timeout"       env:"CONFIRMATION_TIMEOUT"         env-default:"15m"`
	DebugConfirmationTimeout time.Duration `yaml:"debug_confirmation_timeout" env:"DEBUG_CONFIRMATION_TIMEOUT"   env-default:"60s"`
	OpenDuration             time.Duration `yaml:"open_duration"              env:"OPEN_DURATION"                env-default:"10s"`
	HistoryFile              string        `yaml:"history_file"               env:"HISTORY_FILE"                 env-default:"ausgaben.json"`
	RetentionDays            int           `yaml:"retention_days"             env:"HISTORY_RETENTION_DAYS"       env-default:"30"`

	MorgensStunde int `yaml:"morgens_stunde" env:"MORGENS_STUNDE" env-default:"8"`
	MorgensMinute int `yaml:"morgens_minute" env:"MORGENS_MINUTE" env-default:"0"`
	MittagsStunde int `yaml:"mittags_stunde" env:"MITTAGS_STUNDE" env-default:"12"`
	MittagsMinute int `yaml:"mittags_minute" env:"MITTAGS_MINUTE" env-default:"0"`
	AbendsStunde  int `yaml:"abends_stunde"  env:"ABENDS_STUNDE"  env-default:"18"`
	AbendsMinute  int `yaml:"abends_minute"  env:"ABENDS_MINUTE"  env-default:"0"`

	Refill RefillConfig `yaml:"refill"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// Timeout returns the confirmation timeout for the configured mode. Debug
// mode is a process-wide toggle, not per-call.
func (c *Config) Timeout() time.Duration {
	if c.Dispenser.Debug {
		return c.Dispenser.DebugConfirmationTimeout
	}
	return c.Dispenser.ConfirmationTimeout
}

// TelegramEnabled reports whether the reminder gateway can be used.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != 0
}

// Validate checks the invariants that would otherwise only surface at the
// wrong wall-clock moment.
func (c *Config) Validate() error {
	slots := map[string][2]int{
		"morgens": {c.Dispenser.MorgensStunde, c.Dispenser.MorgensMinute},
		"mittags": {c.Dispenser.MittagsStunde, c.Dispenser.MittagsMinute},
		"abends":  {c.Dispenser.AbendsStunde, c.Dispenser.AbendsMinute},
		"refill":  {c.Dispenser.Refill.Stunde, c.Dispenser.Refill.Minute},
	}
	for name, slot := range slots {
		if slot[0] < 0 || slot[0] > 23 || slot[1] < 0 || slot[1] > 59 {
			return fmt.Errorf("slot %s: invalid time %02d:%02d", name, slot[0], slot[1])
		}
	}
	if c.Dispenser.Refill.Tag < 0 || c.Dispenser.Refill.Tag > 6 {
		return fmt.Errorf("refill: invalid weekday %d", c.Dispenser.Refill.Tag)
	}
	if c.Dispenser.RetentionDays < 1 {
		return fmt.Errorf("retention_days must be at least 1, got %d", c.Dispenser.RetentionDays)
	}
	if c.Dispenser.ConfirmationTimeout <= 0 || c.Dispenser.DebugConfirmationTimeout <= 0 {
		return fmt.Errorf("confirmation timeouts must be positive")
	}
	if c.Dispenser.OpenDuration <= 0 {
		return fmt.Errorf("open_duration must be positive")
	}
	return nil
}
