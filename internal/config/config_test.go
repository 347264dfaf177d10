package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir is t.Chdir for toolchains before Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})
}

func loadFromEnv(t *testing.T) *Config {
	t.Helper()
	// Point CONFIG_PATH away from any config.yaml in the working directory.
	t.Setenv("CONFIG_PATH", "")
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadFromEnv(t)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Dispenser.MorgensStunde)
	assert.Equal(t, 12, cfg.Dispenser.MittagsStunde)
	assert.Equal(t, 18, cfg.Dispenser.AbendsStunde)
	assert.Equal(t, 15*time.Minute, cfg.Dispenser.ConfirmationTimeout)
	assert.Equal(t, 10*time.Second, cfg.Dispenser.OpenDuration)
	assert.Equal(t, "ausgaben.json", cfg.Dispenser.HistoryFile)
	assert.Equal(t, 30, cfg.Dispenser.RetentionDays)
	assert.Equal(t, 6, cfg.Dispenser.Refill.Tag)
	assert.Equal(t, 20, cfg.Dispenser.Refill.Stunde)
	assert.False(t, cfg.Dispenser.Debug)
	assert.False(t, cfg.TelegramEnabled())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("MORGENS_STUNDE", "7")
	t.Setenv("MORGENS_MINUTE", "30")
	t.Setenv("DISPENSER_DEBUG", "true")

	cfg := loadFromEnv(t)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Dispenser.MorgensStunde)
	assert.Equal(t, 30, cfg.Dispenser.MorgensMinute)
	assert.True(t, cfg.Dispenser.Debug)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9000
dispenser:
  abends_stunde: 19
  abends_minute: 45
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 19, cfg.Dispenser.AbendsStunde)
	assert.Equal(t, 45, cfg.Dispenser.AbendsMinute)
	// Untouched values keep their defaults.
	assert.Equal(t, 8, cfg.Dispenser.MorgensStunde)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsInvalidSlot(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("MITTAGS_STUNDE", "24")
	chdir(t, t.TempDir())

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mittags")
}

func TestTimeoutPicksDebugValue(t *testing.T) {
	cfg := &Config{
		Dispenser: DispenserConfig{
			ConfirmationTimeout:      15 * time.Minute,
			DebugConfirmationTimeout: time.Minute,
		},
	}

	assert.Equal(t, 15*time.Minute, cfg.Timeout())
	cfg.Dispenser.Debug = true
	assert.Equal(t, time.Minute, cfg.Timeout())
}

func TestTelegramEnabled(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.TelegramEnabled())

	cfg.Telegram.BotToken = "123:abc"
	assert.False(t, cfg.TelegramEnabled())

	cfg.Telegram.ChatID = 42
	assert.True(t, cfg.TelegramEnabled())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Dispenser: DispenserConfig{
				ConfirmationTimeout:      15 * time.Minute,
				DebugConfirmationTimeout: time.Minute,
				OpenDuration:             10 * time.Second,
				RetentionDays:            30,
				MorgensStunde:            8,
				MittagsStunde:            12,
				AbendsStunde:             18,
				Refill:                   RefillConfig{Tag: 6, Stunde: 20},
			},
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Dispenser.AbendsMinute = 60
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Dispenser.Refill.Tag = 7
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Dispenser.RetentionDays = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Dispenser.OpenDuration = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Dispenser.ConfirmationTimeout = 0
	assert.Error(t, cfg.Validate())
}
