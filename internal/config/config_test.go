package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "helpdesk-crm", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 1440, cfg.AutoClose.ThresholdMinutes)
	assert.Equal(t, 60, cfg.AutoClose.WarningMinutes)
}

func TestLoad_RejectsWarningNotBelowThreshold(t *testing.T) {
	t.Setenv("AUTOCLOSE_THRESHOLD_MINUTES", "60")
	t.Setenv("AUTOCLOSE_WARNING_MINUTES", "60")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTOCLOSE_WARNING_MINUTES")
}

func TestLoad_RejectsNonPositiveWindows(t *testing.T) {
	t.Setenv("AUTOCLOSE_THRESHOLD_MINUTES", "0")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("AUTOCLOSE_THRESHOLD_MINUTES", "1440")
	t.Setenv("AUTOCLOSE_WARNING_MINUTES", "-5")

	_, err = Load()
	require.Error(t, err)
}

func TestAutoCloseConfig_Durations(t *testing.T) {
	cfg := AutoCloseConfig{ThresholdMinutes: 90, WarningMinutes: 15, SweepIntervalSecond: 30}

	assert.Equal(t, "1h30m0s", cfg.Threshold().String())
	assert.Equal(t, "15m0s", cfg.WarningWindow().String())
	assert.Equal(t, "30s", cfg.SweepInterval().String())
}
