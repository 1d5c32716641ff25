package config

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/guidance")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, 3, cfg.TxMaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.TxRetryBackoff)
	assert.Equal(t, 60, cfg.FanOutDays)
	assert.Equal(t, "0 1 * * *", cfg.FanOutCron)
	assert.Equal(t, "appointments:changes", cfg.FeedChannel)
	assert.Equal(t, time.UTC, cfg.Location)
}

func TestLoadRequiresPostgres(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresSecretOutsideDev(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/guidance")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/guidance")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TX_MAX_RETRIES", "5")
	t.Setenv("TX_RETRY_BACKOFF", "20ms")
	t.Setenv("SHUTDOWN_TIMEOUT", "3")
	t.Setenv("FANOUT_DAYS", "30")
	t.Setenv("REDIS_URL", "redis://user:pw@cache:6380")
	t.Setenv("TIMEZONE", "Asia/Manila")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 5, cfg.TxMaxRetries)
	assert.Equal(t, 20*time.Millisecond, cfg.TxRetryBackoff)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 30, cfg.FanOutDays)
	assert.Equal(t, "cache:6380", cfg.RedisAddr)
	assert.Equal(t, "user", cfg.RedisUsername)
	assert.Equal(t, "pw", cfg.RedisPassword)
	assert.Equal(t, "Asia/Manila", cfg.Location.String())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/guidance")
	t.Setenv("APP_ENV", "dev")

	t.Run("negative retries", func(t *testing.T) {
		t.Setenv("TX_MAX_RETRIES", "-1")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("zero fan-out", func(t *testing.T) {
		t.Setenv("FANOUT_DAYS", "0")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("unknown timezone", func(t *testing.T) {
		t.Setenv("TIMEZONE", "Mars/Olympus")
		_, err := Load()
		assert.Error(t, err)
	})
}
