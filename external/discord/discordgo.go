package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/dmzstatus/internal/discord"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	guildMembersPageLimit = 1000
	guildStatePollEvery   = 250 * time.Millisecond
	memberCacheSize       = 1024
	memberCacheTTL        = 10 * time.Minute
)

type cachedMember struct {
	displayName string
	isBot       bool
}

type Client struct {
	session          *discordgo.Session
	token            string
	botUserID        string
	membersPageLimit int
	members          *expirable.LRU[string, cachedMember]
}

func NewClient(token string) discordpkg.Client {
	return newClient(token)
}

func newClient(token string) *Client {
	return &Client{
		token:            token,
		membersPageLimit: guildMembersPageLimit,
		members:          expirable.NewLRU[string, cachedMember](memberCacheSize, nil, memberCacheTTL),
	}
}

func (c *Client) Connect(_ context.Context) error {
	s, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return err
	}
	c.session = s
	s.Identify.Intents = discordgo.MakeIntent(
		discordgo.IntentsGuilds |
			discordgo.IntentsGuildMembers |
			discordgo.IntentsGuildMessages |
			discordgo.IntentsMessageContent |
			discordgo.IntentsGuildVoiceStates,
	)
	s.State.TrackVoice = true
	s.State.TrackMembers = true
	if err := s.Open(); err != nil {
		return err
	}
	userID, err := c.fetchBotUserID()
	if err != nil {
		return err
	}
	c.botUserID = userID
	return nil
}

func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *Client) RegisterMessageHandler(handler func(discordpkg.MessageEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		ev, ok := c.messageEvent(m)
		if !ok {
			return
		}
		ev.Reply = func(content string) error {
			_, err := s.ChannelMessageSend(ev.ChannelID, content)
			return err
		}
		handler(ev)
	})
}

func (c *Client) RegisterVoiceStateUpdateHandler(handler func(discordpkg.VoiceStateEvent)) {
	c.session.AddHandler(func(_ *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		if ev, ok := c.voiceStateEvent(vs); ok {
			handler(ev)
		}
	})
}

// messageEvent converts a guild message. The bot's own messages are dropped
// before any member lookup.
func (c *Client) messageEvent(m *discordgo.MessageCreate) (discordpkg.MessageEvent, bool) {
	if m == nil || m.Message == nil || m.Author == nil {
		return discordpkg.MessageEvent{}, false
	}
	if m.GuildID == "" || c.isSelf(m.Author.ID) {
		return discordpkg.MessageEvent{}, false
	}
	return discordpkg.MessageEvent{
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		UserID:      m.Author.ID,
		DisplayName: c.displayNameFromMessage(m.GuildID, m.Author, m.Member),
		UserIsBot:   m.Author.Bot,
		Content:     m.Content,
	}, true
}

func (c *Client) voiceStateEvent(vs *discordgo.VoiceStateUpdate) (discordpkg.VoiceStateEvent, bool) {
	if vs == nil || vs.VoiceState == nil {
		return discordpkg.VoiceStateEvent{}, false
	}
	beforeChannelID := ""
	if vs.BeforeUpdate != nil {
		beforeChannelID = vs.BeforeUpdate.ChannelID
	}
	afterChannelID := vs.ChannelID
	if beforeChannelID == afterChannelID && beforeChannelID != "" {
		return discordpkg.VoiceStateEvent{}, false
	}
	if vs.GuildID == "" || vs.UserID == "" || c.isSelf(vs.UserID) {
		return discordpkg.VoiceStateEvent{}, false
	}
	info := c.resolveMember(vs.GuildID, vs.UserID, vs.Member)
	return discordpkg.VoiceStateEvent{
		GuildID:         vs.GuildID,
		UserID:          vs.UserID,
		DisplayName:     info.displayName,
		UserIsBot:       info.isBot,
		BeforeChannelID: beforeChannelID,
		AfterChannelID:  afterChannelID,
	}, true
}

func (c *Client) isSelf(userID string) bool {
	return c.botUserID != "" && userID == c.botUserID
}

func (c *Client) RegisterComponentHandler(handler func(discordpkg.ComponentEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ic == nil || ic.Type != discordgo.InteractionMessageComponent {
			return
		}
		data := ic.MessageComponentData()
		messageID := ""
		if ic.Message != nil {
			messageID = ic.Message.ID
		}
		userID := ""
		if ic.Member != nil && ic.Member.User != nil {
			userID = ic.Member.User.ID
		}
		if userID == "" && ic.User != nil {
			userID = ic.User.ID
		}
		slog.Debug("component interaction received", "guild_id", ic.GuildID, "channel_id", ic.ChannelID, "message_id", messageID, "custom_id", data.CustomID, "user_id", userID)
		handler(discordpkg.ComponentEvent{
			GuildID:   ic.GuildID,
			ChannelID: ic.ChannelID,
			MessageID: messageID,
			CustomID:  data.CustomID,
			UserID:    userID,
			UpdateMessage: func(msg discordpkg.StatusMessage) error {
				return s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
					Type: discordgo.InteractionResponseUpdateMessage,
					Data: &discordgo.InteractionResponseData{
						Embeds:     []*discordgo.MessageEmbed{toMessageEmbed(msg.Embed)},
						Components: toComponents(msg.Buttons),
					},
				})
			},
			Acknowledge: func() error {
				return s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
					Type: discordgo.InteractionResponseDeferredMessageUpdate,
				})
			},
		})
	})
}

// ListGuildMembers pages through every member of the guild via REST.
func (c *Client) ListGuildMembers(ctx context.Context, guildID string) ([]discordpkg.GuildMember, error) {
	if c.session == nil {
		return nil, fmt.Errorf("discord session is not initialized")
	}
	var (
		out   []discordpkg.GuildMember
		after string
	)
	for {
		page, err := c.session.GuildMembers(guildID, after, c.membersPageLimit, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list guild members: %w", err)
		}
		for _, m := range page {
			if m == nil || m.User == nil {
				continue
			}
			info := c.rememberMember(m)
			out = append(out, discordpkg.GuildMember{
				UserID:      m.User.ID,
				DisplayName: info.displayName,
				IsBot:       info.isBot,
			})
			after = m.User.ID
		}
		if len(page) < c.membersPageLimit {
			return out, nil
		}
	}
}

// ListVoiceParticipants returns everyone currently connected to a voice
// channel of the guild. Voice states only arrive with GUILD_CREATE, so this
// waits until the guild is available in the state cache or ctx expires.
func (c *Client) ListVoiceParticipants(ctx context.Context, guildID string) ([]discordpkg.VoiceParticipant, error) {
	if c.session == nil || c.session.State == nil {
		return nil, fmt.Errorf("discord session is not initialized")
	}
	guild, err := c.waitForGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}

	c.session.State.RLock()
	states := make([]discordgo.VoiceState, 0, len(guild.VoiceStates))
	for _, vs := range guild.VoiceStates {
		if vs != nil {
			states = append(states, *vs)
		}
	}
	c.session.State.RUnlock()

	participants := make([]discordpkg.VoiceParticipant, 0, len(states))
	seen := make(map[string]struct{}, len(states))
	for i := range states {
		state := &states[i]
		if state.ChannelID == "" || state.UserID == "" {
			continue
		}
		if _, exists := seen[state.UserID]; exists {
			continue
		}
		seen[state.UserID] = struct{}{}
		info := c.resolveMember(guildID, state.UserID, state.Member)
		participants = append(participants, discordpkg.VoiceParticipant{
			UserID:      state.UserID,
			DisplayName: info.displayName,
			ChannelID:   state.ChannelID,
			IsBot:       info.isBot,
		})
	}
	return participants, nil
}

func (c *Client) waitForGuild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	ticker := time.NewTicker(guildStatePollEvery)
	defer ticker.Stop()
	for {
		guild, err := c.session.State.Guild(guildID)
		if err == nil && guild != nil && !guild.Unavailable {
			return guild, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("guild %s did not become available: %w", guildID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) SendStatusMessage(channelID string, msg discordpkg.StatusMessage) (string, error) {
	sent, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{toMessageEmbed(msg.Embed)},
		Components: toComponents(msg.Buttons),
	})
	if err != nil {
		return "", err
	}
	return sent.ID, nil
}

func (c *Client) EditStatusMessage(channelID, messageID string, msg discordpkg.StatusMessage) error {
	embeds := []*discordgo.MessageEmbed{toMessageEmbed(msg.Embed)}
	components := toComponents(msg.Buttons)
	_, err := c.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         messageID,
		Channel:    channelID,
		Embeds:     &embeds,
		Components: &components,
	})
	if isRESTNotFound(err) {
		return fmt.Errorf("%w: %w", discordpkg.ErrMessageNotFound, err)
	}
	return err
}

func (c *Client) fetchBotUserID() (string, error) {
	if c.session.State != nil && c.session.State.User != nil && c.session.State.User.ID != "" {
		return c.session.State.User.ID, nil
	}
	u, err := c.session.User("@me")
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

func (c *Client) Run() error {
	select {}
}

func (c *Client) displayNameFromMessage(guildID string, author *discordgo.User, member *discordgo.Member) string {
	// Message payloads carry a partial member without the user object.
	if member != nil && member.User == nil {
		withUser := *member
		withUser.User = author
		member = &withUser
	}
	return c.resolveMember(guildID, author.ID, member).displayName
}

func (c *Client) resolveMember(guildID, userID string, member *discordgo.Member) cachedMember {
	if member != nil && member.User != nil {
		return c.rememberMember(member)
	}
	if cached, ok := c.members.Get(userID); ok {
		return cached
	}
	if resolved := c.resolveGuildMember(guildID, userID); resolved != nil {
		return c.rememberMember(resolved)
	}
	slog.Warn("discord member could not be resolved; using user id as display name", "guild_id", guildID, "user_id", userID)
	return cachedMember{displayName: userID}
}

func (c *Client) rememberMember(m *discordgo.Member) cachedMember {
	info := cachedMember{
		displayName: memberDisplayName(m),
		isBot:       m.User.Bot,
	}
	c.members.Add(m.User.ID, info)
	return info
}

func (c *Client) resolveGuildMember(guildID, userID string) *discordgo.Member {
	if c.session == nil {
		return nil
	}
	if c.session.State != nil {
		member, err := c.session.State.Member(guildID, userID)
		if err == nil && member != nil && member.User != nil {
			return member
		}
	}
	member, err := c.session.GuildMember(guildID, userID)
	if err != nil {
		if !isRESTNotFound(err) {
			slog.Warn("failed to fetch guild member", "error", err, "guild_id", guildID, "user_id", userID)
		}
		return nil
	}
	if member.User == nil {
		return nil
	}
	return member
}

func isRESTNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Response == nil {
		return false
	}
	return restErr.Response.StatusCode == http.StatusNotFound
}

func memberDisplayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	return preferredDiscordName(m.User.GlobalName, m.User.Username, m.User.ID)
}

func preferredDiscordName(globalName, username, fallback string) string {
	if globalName != "" {
		return globalName
	}
	if username != "" {
		return username
	}
	return fallback
}

func toMessageEmbed(e discordpkg.Embed) *discordgo.MessageEmbed {
	fields := make([]*discordgo.MessageEmbedField, 0, len(e.Fields))
	for _, f := range e.Fields {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	embed := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Fields:      fields,
	}
	if !e.Timestamp.IsZero() {
		embed.Timestamp = e.Timestamp.Format(time.RFC3339)
	}
	return embed
}

func toComponents(buttons []discordpkg.Button) []discordgo.MessageComponent {
	if len(buttons) == 0 {
		return []discordgo.MessageComponent{}
	}
	row := make([]discordgo.MessageComponent, 0, len(buttons))
	for _, b := range buttons {
		row = append(row, discordgo.Button{
			Label:    b.Label,
			Style:    toButtonStyle(b.Style),
			CustomID: b.CustomID,
		})
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: row}}
}

func toButtonStyle(style discordpkg.ButtonStyle) discordgo.ButtonStyle {
	if style == discordpkg.ButtonStylePrimary {
		return discordgo.PrimaryButton
	}
	return discordgo.SecondaryButton
}
