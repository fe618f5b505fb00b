package presence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/foxseedlab/dmzstatus/internal/activity"
	"github.com/foxseedlab/dmzstatus/internal/config"
	"github.com/foxseedlab/dmzstatus/internal/discord"
)

// Recorder is the part of the activity tracker the manager feeds.
type Recorder interface {
	Initialize(ctx context.Context, watched, connected []string, now time.Time) error
	Apply(ctx context.Context, ev activity.Event) bool
}

// Manager translates Discord gateway events into activity events.
type Manager struct {
	cfg     *config.Config
	tracker Recorder
	discord discord.Client
	clock   quartz.Clock
}

func NewManager(cfg *config.Config, tracker Recorder, dc discord.Client, clk quartz.Clock) *Manager {
	return &Manager{
		cfg:     cfg,
		tracker: tracker,
		discord: dc,
		clock:   clk,
	}
}

// Bootstrap fixes the watched set to the guild's human members and opens a
// voice session for everyone already sitting in a tracked channel. Stored
// records are loaded under their own InitialLoadTimeout so slow guild
// listing cannot eat into it.
func (m *Manager) Bootstrap(ctx context.Context) error {
	members, err := m.discord.ListGuildMembers(ctx, m.cfg.DiscordGuildID)
	if err != nil {
		return fmt.Errorf("failed to list guild members: %w", err)
	}
	watched := make([]string, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, member := range members {
		if member.IsBot || member.DisplayName == "" {
			continue
		}
		if _, dup := seen[member.DisplayName]; dup {
			slog.Warn("duplicate display name in guild; members will share one record", "display_name", member.DisplayName, "user_id", member.UserID)
			continue
		}
		seen[member.DisplayName] = struct{}{}
		watched = append(watched, member.DisplayName)
	}

	participants, err := m.discord.ListVoiceParticipants(ctx, m.cfg.DiscordGuildID)
	if err != nil {
		return fmt.Errorf("failed to list voice participants: %w", err)
	}
	connected := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.IsBot || !m.cfg.IsTrackedVoiceChannel(p.ChannelID) {
			continue
		}
		connected = append(connected, p.DisplayName)
	}

	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.InitialLoadTimeout)
	defer cancel()
	if err := m.tracker.Initialize(loadCtx, watched, connected, m.clock.Now()); err != nil {
		return fmt.Errorf("failed to initialize activity tracker: %w", err)
	}
	slog.Info("presence bootstrap completed", "guild_id", m.cfg.DiscordGuildID, "guild_members", len(members), "watched", len(watched), "connected", len(connected))
	return nil
}

func (m *Manager) HandleMessage(event discord.MessageEvent) {
	if event.GuildID != m.cfg.DiscordGuildID || event.UserIsBot {
		return
	}
	now := m.clock.Now()

	if strings.TrimSpace(event.Content) == greetCommand && event.Reply != nil {
		if err := event.Reply(greetReply); err != nil {
			slog.Warn("failed to reply to greeting", "error", err, "channel_id", event.ChannelID, "user_id", event.UserID)
		}
	}

	if !m.tracker.Apply(context.Background(), activity.TextMessage(event.DisplayName, now)) {
		slog.Debug("text message not tracked", "display_name", event.DisplayName, "user_id", event.UserID)
	}
}

// HandleVoiceStateUpdate maps a channel transition onto leave and join
// events. An empty BeforeChannelID means the previous state is unknown, so a
// departure to an untracked channel still closes any open session.
func (m *Manager) HandleVoiceStateUpdate(event discord.VoiceStateEvent) {
	if event.GuildID != m.cfg.DiscordGuildID || event.UserIsBot {
		return
	}
	before, after := event.BeforeChannelID, event.AfterChannelID
	if before != "" && before == after {
		return
	}
	beforeTracked := m.cfg.IsTrackedVoiceChannel(before)
	afterTracked := m.cfg.IsTrackedVoiceChannel(after)
	now := m.clock.Now()
	ctx := context.Background()

	slog.Debug("voice state update received", "display_name", event.DisplayName, "user_id", event.UserID, "before_channel_id", before, "after_channel_id", after)

	switch {
	case afterTracked && beforeTracked:
		// Moving between tracked channels closes one session and opens the next.
		m.tracker.Apply(ctx, activity.VoiceLeave(event.DisplayName, now))
		m.tracker.Apply(ctx, activity.VoiceJoin(event.DisplayName, now))
	case afterTracked:
		m.tracker.Apply(ctx, activity.VoiceJoin(event.DisplayName, now))
	case beforeTracked || before == "":
		m.tracker.Apply(ctx, activity.VoiceLeave(event.DisplayName, now))
	}
}
