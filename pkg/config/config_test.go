package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(zap.NewNop(), "no-such-config")
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8080/socket", cfg.ServerURL)
	assert.True(t, cfg.ChatEnabled)
	assert.Equal(t, ".balance-scale", cfg.StateDir)
	assert.Empty(t, cfg.LobbyCode)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BALANCE_SERVER_URL", "ws://game.example.com/socket")
	t.Setenv("BALANCE_LOBBY_CODE", "ab12")
	t.Setenv("BALANCE_CHAT_ENABLED", "false")

	cfg, err := Load(zap.NewNop(), "no-such-config")
	require.NoError(t, err)

	assert.Equal(t, "ws://game.example.com/socket", cfg.ServerURL)
	assert.Equal(t, "ab12", cfg.LobbyCode)
	assert.False(t, cfg.ChatEnabled)
}
