package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "migrations", cfg.Database.MigrationsPath)
	assert.Equal(t, "X-API-Key", cfg.Auth.APIKeyHeader)
	assert.Equal(t, 2000, cfg.Payroll.MinYear)
	assert.Equal(t, 3, cfg.Payroll.MaxApproveRetries)
	assert.Equal(t, 22, cfg.Payroll.DefaultAttendanceDays)
	assert.False(t, cfg.Payroll.NotifyDirectors)
	assert.Equal(t, 10*time.Second, cfg.Notification.DeliveryTimeout)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("PAYROLL_APPROVE_MAX_RETRIES", "5")
	t.Setenv("NOTIFY_DIRECTORS", "true")
	t.Setenv("WEBHOOK_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5, cfg.Payroll.MaxApproveRetries)
	assert.True(t, cfg.Payroll.NotifyDirectors)
	assert.Equal(t, 3*time.Second, cfg.Webhook.Timeout)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SERVER_PORT", "http"},
		{"PAYROLL_APPROVE_MAX_RETRIES", "many"},
		{"NOTIFY_DIRECTORS", "maybe"},
		{"NOTIFICATION_DELIVERY_TIMEOUT", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "JWT_SECRET")

	cfg.Database.URL = "postgres://localhost/payroll"
	cfg.Auth.JWTSecret = "secret"
	require.NoError(t, cfg.Validate())

	cfg.Payroll.DefaultAttendanceDays = 40
	require.Error(t, cfg.Validate())
}
