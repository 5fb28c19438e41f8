package config

import "os"

const (
	envToken  = "STATEBOT_TOKEN"
	envChatID = "STATEBOT_CHAT_ID"
)

// applyEnvOverrides lets secrets live outside the config file (.env or unit
// environment). Applied after decode, before validation.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(envToken); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv(envChatID); v != "" {
		c.Telegram.ChatID = v
	}
}
