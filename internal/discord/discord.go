package discord

import (
	"context"
	"errors"
	"time"
)

// ErrMessageNotFound is returned when an edited message no longer exists.
var ErrMessageNotFound = errors.New("discord message not found")

type MessageEvent struct {
	GuildID     string
	ChannelID   string
	UserID      string
	DisplayName string
	UserIsBot   bool
	Content     string
	Reply       func(content string) error
}

type VoiceStateEvent struct {
	GuildID         string
	UserID          string
	DisplayName     string
	UserIsBot       bool
	BeforeChannelID string
	AfterChannelID  string
}

type GuildMember struct {
	UserID      string
	DisplayName string
	IsBot       bool
}

type VoiceParticipant struct {
	UserID      string
	DisplayName string
	ChannelID   string
	IsBot       bool
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title       string
	Description string
	Timestamp   time.Time
	Fields      []EmbedField
}

type ButtonStyle int

const (
	ButtonStylePrimary ButtonStyle = iota + 1
	ButtonStyleSecondary
)

type Button struct {
	CustomID string
	Label    string
	Style    ButtonStyle
}

// StatusMessage is an embed with one row of buttons.
type StatusMessage struct {
	Embed   Embed
	Buttons []Button
}

// ComponentEvent is a button click. Exactly one of UpdateMessage or
// Acknowledge must be called to answer the interaction.
type ComponentEvent struct {
	GuildID       string
	ChannelID     string
	MessageID     string
	CustomID      string
	UserID        string
	UpdateMessage func(msg StatusMessage) error
	Acknowledge   func() error
}

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	RegisterMessageHandler(handler func(MessageEvent))
	RegisterVoiceStateUpdateHandler(handler func(VoiceStateEvent))
	RegisterComponentHandler(handler func(ComponentEvent))
	ListGuildMembers(ctx context.Context, guildID string) ([]GuildMember, error)
	ListVoiceParticipants(ctx context.Context, guildID string) ([]VoiceParticipant, error)
	SendStatusMessage(channelID string, msg StatusMessage) (string, error)
	EditStatusMessage(channelID, messageID string, msg StatusMessage) error
	Run() error
}
