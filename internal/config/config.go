package config

import (
	"fmt"
	"time"
)

const (
	StorageBackendPostgres = "postgres"
	StorageBackendRedis    = "redis"
)

type Config struct {
	Env                          string
	DiscordToken                 string
	DiscordGuildID               string
	DiscordStatusChannelID       string
	DiscordTrackedVoiceChannelID []string
	StatusPageSize               int
	StatusRefreshInterval        time.Duration
	TogetherThreshold            time.Duration
	StorageBackend               string
	DatabaseURL                  string
	RedisURL                     string
	RedisKeyPrefix               string
	PersistTimeout               time.Duration
	InitialLoadTimeout           time.Duration
	Port                         int
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	switch c.StorageBackend {
	case StorageBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=%s", StorageBackendPostgres)
		}
	case StorageBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORAGE_BACKEND=%s", StorageBackendRedis)
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageBackendPostgres, StorageBackendRedis, c.StorageBackend)
	}
	if c.StatusPageSize <= 0 {
		return fmt.Errorf("STATUS_PAGE_SIZE must be positive, got %d", c.StatusPageSize)
	}
	if c.StatusRefreshInterval <= 0 {
		return fmt.Errorf("STATUS_REFRESH_INTERVAL must be positive, got %s", c.StatusRefreshInterval)
	}
	if c.TogetherThreshold < 0 {
		return fmt.Errorf("TOGETHER_THRESHOLD must not be negative, got %s", c.TogetherThreshold)
	}
	if c.PersistTimeout <= 0 {
		return fmt.Errorf("PERSIST_TIMEOUT must be positive, got %s", c.PersistTimeout)
	}
	if c.InitialLoadTimeout <= 0 {
		return fmt.Errorf("INITIAL_LOAD_TIMEOUT must be positive, got %s", c.InitialLoadTimeout)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "DISCORD_GUILD_ID", value: c.DiscordGuildID},
		{name: "DISCORD_STATUS_CHANNEL_ID", value: c.DiscordStatusChannelID},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsTrackedVoiceChannel reports whether time spent in channelID counts as voice
// activity. An empty allow-list tracks every voice channel of the guild.
func (c *Config) IsTrackedVoiceChannel(channelID string) bool {
	if channelID == "" {
		return false
	}
	if len(c.DiscordTrackedVoiceChannelID) == 0 {
		return true
	}
	for _, id := range c.DiscordTrackedVoiceChannelID {
		if id == channelID {
			return true
		}
	}
	return false
}
