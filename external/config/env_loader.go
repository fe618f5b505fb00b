package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/dmzstatus/internal/config"
	"github.com/joho/godotenv"
)

type envConfig struct {
	Env                          string        `env:"ENV" envDefault:"production"`
	DiscordToken                 string        `env:"DISCORD_TOKEN,required"`
	DiscordGuildID               string        `env:"DISCORD_GUILD_ID,required"`
	DiscordStatusChannelID       string        `env:"DISCORD_STATUS_CHANNEL_ID,required"`
	DiscordTrackedVoiceChannelID []string      `env:"DISCORD_TRACKED_VOICE_CHANNEL_IDS" envSeparator:","`
	StatusPageSize               int           `env:"STATUS_PAGE_SIZE" envDefault:"8"`
	StatusRefreshInterval        time.Duration `env:"STATUS_REFRESH_INTERVAL" envDefault:"30s"`
	TogetherThreshold            time.Duration `env:"TOGETHER_THRESHOLD" envDefault:"10m"`
	StorageBackend               string        `env:"STORAGE_BACKEND" envDefault:"postgres"`
	DatabaseURL                  string        `env:"DATABASE_URL"`
	RedisURL                     string        `env:"REDIS_URL"`
	RedisKeyPrefix               string        `env:"REDIS_KEY_PREFIX" envDefault:"dmz"`
	PersistTimeout               time.Duration `env:"PERSIST_TIMEOUT" envDefault:"5s"`
	InitialLoadTimeout           time.Duration `env:"INITIAL_LOAD_TIMEOUT" envDefault:"2m"`
	Port                         int           `env:"PORT" envDefault:"10000"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*internalconfig.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env file; continuing with process environment", "error", err)
	}

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                          raw.Env,
		DiscordToken:                 raw.DiscordToken,
		DiscordGuildID:               raw.DiscordGuildID,
		DiscordStatusChannelID:       raw.DiscordStatusChannelID,
		DiscordTrackedVoiceChannelID: compactIDs(raw.DiscordTrackedVoiceChannelID),
		StatusPageSize:               raw.StatusPageSize,
		StatusRefreshInterval:        raw.StatusRefreshInterval,
		TogetherThreshold:            raw.TogetherThreshold,
		StorageBackend:               raw.StorageBackend,
		DatabaseURL:                  raw.DatabaseURL,
		RedisURL:                     raw.RedisURL,
		RedisKeyPrefix:               raw.RedisKeyPrefix,
		PersistTimeout:               raw.PersistTimeout,
		InitialLoadTimeout:           raw.InitialLoadTimeout,
		Port:                         raw.Port,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func compactIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out = append(out, id)
	}
	return out
}
