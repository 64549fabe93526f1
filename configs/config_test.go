package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DISPATCH_WORKERS", "")
	t.Setenv("DISPATCH_REFRESH_MARGIN", "")

	cfg := LoadConfig()
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, 300*time.Second, cfg.Dispatch.RefreshMargin)
	assert.Equal(t, 3, cfg.Dispatch.RetryAttempts)
	assert.Equal(t, "https://graph.facebook.com", cfg.Endpoints.FacebookGraph)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DISPATCH_WORKERS", "8")
	t.Setenv("DISPATCH_LEASE", "5m")
	t.Setenv("DISPATCH_BATCH_SIZE", "not-a-number")
	t.Setenv("ALERT_RECIPIENTS", "ops@example.com, , oncall@example.com")

	cfg := LoadConfig()
	assert.Equal(t, 8, cfg.Dispatch.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Dispatch.Lease)
	assert.Equal(t, 100, cfg.Dispatch.BatchSize)
	assert.Equal(t, []string{"ops@example.com", "oncall@example.com"}, cfg.Alerts.Recipients)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		PostgresURI: "postgres://localhost/postdispatch",
		SecretKey:   "0123456789abcdef0123456789abcdef",
		Dispatch:    Dispatch{Workers: 2, RetryAttempts: 3},
	}
	require.NoError(t, cfg.Validate())

	cfg.PostgresURI = ""
	cfg.SecretKey = "short"
	err := cfg.Validate()

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Len(t, cfgErr.Missing, 2)
	assert.Contains(t, err.Error(), "POSTGRES_URI")
}

func TestAlertsEnabled(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.AlertsEnabled())

	cfg.Alerts = Alerts{Region: "us-east-1", From: "alerts@example.com", Recipients: []string{"ops@example.com"}}
	assert.True(t, cfg.AlertsEnabled())
}
