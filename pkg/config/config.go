// Package config loads client configuration from an optional yaml file
// and BALANCE_-prefixed environment variables.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	// ServerURL is the websocket endpoint of the game authority.
	ServerURL string `mapstructure:"server_url"`
	// PlayerName pre-fills the display name; may be empty.
	PlayerName string `mapstructure:"player_name"`
	// LobbyCode, when set, is an invite-locked join target.
	LobbyCode string `mapstructure:"lobby_code"`
	// ChatEnabled composes the chat/presence overlay into the session.
	ChatEnabled bool `mapstructure:"chat_enabled"`
	// DebugAddr serves the local observation API when non-empty.
	DebugAddr string `mapstructure:"debug_addr"`
	// InviteBaseURL is the web client URL invite links point at.
	InviteBaseURL string `mapstructure:"invite_base_url"`
	// StateDir holds the persisted client identity.
	StateDir string `mapstructure:"state_dir"`
}

// Load reads configuration from a file and environment variables.
func Load(logger *zap.Logger, fileName string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server_url", "ws://localhost:8080/socket")
	v.SetDefault("player_name", "")
	v.SetDefault("lobby_code", "")
	v.SetDefault("chat_enabled", true)
	v.SetDefault("debug_addr", "")
	v.SetDefault("invite_base_url", "http://localhost:8080/")
	v.SetDefault("state_dir", ".balance-scale")

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BALANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		logger.Warn("config file not found, relying on defaults/env vars")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
