//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("should apply defaults on a minimal file", func(t *testing.T) {
		// --- Arrange ---
		path := writeConfig(t, "bot:\n  token: abc\ndatabase:\n  url: postgres://localhost/cb\n")

		// --- Act ---
		cfg, err := Load(path)

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, 300*time.Second, cfg.State.CacheTTL)
		assert.Equal(t, 5120, cfg.State.HistoryMaxBytes)
		assert.Equal(t, 1024, cfg.State.PrefsMaxBytes)
		assert.Equal(t, 5*time.Minute, cfg.Booking.HoldTTL)
		assert.Equal(t, 60*time.Second, cfg.Scheduler.SweepInterval)
		assert.Equal(t, 600*time.Second, cfg.Scheduler.CacheEvictInterval)
		assert.Equal(t, 8, cfg.Runtime.UpdateWorkers)
		assert.Equal(t, "RUB", cfg.Payment.Currency)
	})

	t.Run("should let environment override the file", func(t *testing.T) {
		// --- Arrange ---
		path := writeConfig(t, "bot:\n  token: from-file\ndatabase:\n  url: postgres://localhost/cb\n")
		t.Setenv("CB_BOT_TOKEN", "from-env")
		t.Setenv("CB_STATE_CACHE_TTL", "90s")

		// --- Act ---
		cfg, err := Load(path)

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Bot.Token)
		assert.Equal(t, 90*time.Second, cfg.State.CacheTTL)
	})

	t.Run("should fail without a bot token", func(t *testing.T) {
		// --- Arrange ---
		path := writeConfig(t, "database:\n  url: postgres://localhost/cb\n")

		// --- Act ---
		_, err := Load(path)

		// --- Assert ---
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bot.token")
	})

	t.Run("should reject duplicate personas", func(t *testing.T) {
		// --- Arrange ---
		path := writeConfig(t, `bot:
  token: abc
database:
  url: postgres://localhost/cb
catalog:
  personas:
    - id: anna
    - id: anna
`)

		// --- Act ---
		_, err := Load(path)

		// --- Assert ---
		require.Error(t, err)
		assert.Contains(t, err.Error(), "declared twice")
	})

	t.Run("should accept a missing file when env supplies required values", func(t *testing.T) {
		// --- Arrange ---
		t.Setenv("CB_BOT_TOKEN", "abc")
		t.Setenv("CB_DATABASE_URL", "postgres://localhost/cb")

		// --- Act ---
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, "abc", cfg.Bot.Token)
	})
}
