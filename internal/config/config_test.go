package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://bugzilla.mozilla.org/rest", cfg.BMOAPIURL)
	assert.Equal(t, "https://hg.mozilla.org/mozilla-central/", cfg.TargetRepo)
	assert.Equal(t, "exchange/hgpushes/v2", cfg.PulseExchange)
	assert.Equal(t, 5671, cfg.PulsePort)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BMO_API_URL", "http://bmo.test/rest")
	t.Setenv("PULSE_USERNAME", "hgping-bot")
	t.Setenv("TMO_PING_NAMESPACE", "eng-workflow")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://bmo.test/rest", cfg.BMOAPIURL)
	assert.Equal(t, "hgping-bot", cfg.PulseUser)
	assert.Equal(t, "eng-workflow", cfg.TMOPingNamespace)
}

func TestValidatePulse(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Error(t, cfg.ValidatePulse())

	cfg.PulseUser = "hgping-bot"
	assert.NoError(t, cfg.ValidatePulse())
}

func TestValidateTMO(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Error(t, cfg.ValidateTMO())

	cfg.TMOPingNamespace = "eng-workflow"
	cfg.TMOPingDoctype = "hgpush"
	cfg.TMOPingDocversion = "1"
	assert.NoError(t, cfg.ValidateTMO())
}
