package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("OVERDUE_POLICY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddr)
	assert.Contains(t, cfg.DatabaseURL, "postgres://lending_hub:")
	assert.Equal(t, 60*time.Second, cfg.LivenessWindow)
	assert.Equal(t, 64, cfg.ChannelBuffer)
	assert.Equal(t, 32, cfg.OfflineBuffer)
	assert.Equal(t, 15*time.Minute, cfg.OverdueInterval)
	assert.False(t, cfg.StoreCompensating)
	assert.Empty(t, cfg.OverduePolicy)
	assert.False(t, cfg.OverdueEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "BOLT")
	t.Setenv("STORE_COMPENSATING", "true")
	t.Setenv("HUB_CHANNEL_BUFFER", "8")
	t.Setenv("HUB_OFFLINE_GRACE", "not-a-duration")
	t.Setenv("OVERDUE_POLICY", "daysPastDue >= 3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverBolt, cfg.StoreDriver)
	assert.True(t, cfg.StoreCompensating)
	assert.Equal(t, 8, cfg.ChannelBuffer)
	assert.Equal(t, 30*time.Second, cfg.OfflineGrace)
	assert.Equal(t, "daysPastDue >= 3", cfg.OverduePolicy)
	assert.True(t, cfg.OverdueEnabled())
}

func TestLoad_BlankOverduePolicyDisablesSweeper(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("OVERDUE_POLICY", "   ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.OverdueEnabled())
}

func TestLoad_Rejects(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "mongo")
	_, err = Load()
	assert.Error(t, err)
}

func TestParseInt(t *testing.T) {
	assert.Equal(t, 5, parseInt("5", 1))
	assert.Equal(t, 1, parseInt("", 1))
	assert.Equal(t, 1, parseInt("x", 1))
	assert.Equal(t, 1, parseInt("-3", 1))
}
