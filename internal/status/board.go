package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/foxseedlab/dmzstatus/internal/activity"
	"github.com/foxseedlab/dmzstatus/internal/config"
	"github.com/foxseedlab/dmzstatus/internal/discord"
	"github.com/foxseedlab/dmzstatus/internal/metrics"
)

const (
	triggerStartup  = "startup"
	triggerInterval = "interval"
	triggerButton   = "button"
)

type SnapshotSource interface {
	Snapshot(now time.Time) []activity.MemberSnapshot
}

// Board keeps one status message up to date. It owns the requested page; the
// tracker never sees it.
type Board struct {
	cfg     *config.Config
	source  SnapshotSource
	discord discord.Client
	clock   quartz.Clock

	// pushMu serializes posts and edits. It is never held by button handling.
	pushMu sync.Mutex

	// mu guards page, messageID and seq. It is never held across a Discord call.
	mu        sync.Mutex
	page      int
	messageID string
	seq       uint64
}

func NewBoard(cfg *config.Config, source SnapshotSource, dc discord.Client, clk quartz.Clock) *Board {
	return &Board{
		cfg:     cfg,
		source:  source,
		discord: dc,
		clock:   clk,
	}
}

// Start posts the status message. On failure the next Refresh posts again.
func (b *Board) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.pushMu.Lock()
	defer b.pushMu.Unlock()
	return b.post(triggerStartup)
}

// Run refreshes the board every StatusRefreshInterval until ctx is done.
func (b *Board) Run(ctx context.Context) {
	slog.Info("status board refresh loop started", "interval", b.cfg.StatusRefreshInterval)
	w := b.clock.TickerFunc(ctx, b.cfg.StatusRefreshInterval, func() error {
		if err := b.Refresh(ctx); err != nil {
			slog.Error("failed to refresh status board", "error", err)
		}
		return nil
	}, "status", "refresh")
	_ = w.Wait()
	slog.Info("status board refresh loop stopped")
}

// Refresh edits the status message, or posts a new one when there is none.
// A render overtaken by a button update before it is sent is dropped, and a
// message deleted on Discord's side is forgotten so the next call reposts it.
func (b *Board) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.pushMu.Lock()
	defer b.pushMu.Unlock()

	b.mu.Lock()
	messageID := b.messageID
	if messageID == "" {
		b.mu.Unlock()
		return b.post(triggerInterval)
	}
	msg, seq := b.renderLocked()
	b.mu.Unlock()

	if b.superseded(seq) {
		slog.Debug("status refresh skipped; a newer render was already pushed", "message_id", messageID)
		return nil
	}
	if err := b.discord.EditStatusMessage(b.cfg.DiscordStatusChannelID, messageID, msg); err != nil {
		metrics.StatusPushErrorsTotal.Inc()
		if errors.Is(err, discord.ErrMessageNotFound) {
			b.mu.Lock()
			if b.messageID == messageID {
				b.messageID = ""
			}
			b.mu.Unlock()
			slog.Warn("status message is gone; reposting on next refresh", "message_id", messageID)
		}
		return fmt.Errorf("failed to edit status message %s: %w", messageID, err)
	}
	metrics.StatusRendersTotal.WithLabelValues(triggerInterval).Inc()
	return nil
}

// HandleComponent answers the refresh, previous and next buttons. Paging past
// either end, or a click on an older status message, acknowledges the click
// without re-rendering.
func (b *Board) HandleComponent(event discord.ComponentEvent) {
	if event.GuildID != b.cfg.DiscordGuildID {
		return
	}
	switch event.CustomID {
	case ButtonRefresh, ButtonPrevious, ButtonNext:
	default:
		return
	}

	b.mu.Lock()
	if event.MessageID != b.messageID {
		b.mu.Unlock()
		slog.Debug("status button on a stale message", "message_id", event.MessageID, "custom_id", event.CustomID)
		b.acknowledge(event)
		return
	}
	total := TotalPages(len(b.source.Snapshot(b.clock.Now())), b.cfg.StatusPageSize)
	b.page = clampPage(b.page, total)
	changed := true
	switch event.CustomID {
	case ButtonPrevious:
		changed = b.page > 0
		if changed {
			b.page--
		}
	case ButtonNext:
		changed = b.page < total-1
		if changed {
			b.page++
		}
	}
	if !changed {
		b.mu.Unlock()
		b.acknowledge(event)
		return
	}
	msg, _ := b.renderLocked()
	page := b.page
	b.mu.Unlock()

	if err := event.UpdateMessage(msg); err != nil {
		metrics.StatusPushErrorsTotal.Inc()
		slog.Error("failed to update status message from button", "error", err, "custom_id", event.CustomID, "page", page)
		return
	}
	metrics.StatusRendersTotal.WithLabelValues(triggerButton).Inc()
	slog.Debug("status board paged", "custom_id", event.CustomID, "page", page, "total_pages", total, "user_id", event.UserID)
}

func (b *Board) Page() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.page
}

func (b *Board) acknowledge(event discord.ComponentEvent) {
	if err := event.Acknowledge(); err != nil {
		slog.Warn("failed to acknowledge status button", "error", err, "custom_id", event.CustomID, "user_id", event.UserID)
	}
}

// post must be called with pushMu held.
func (b *Board) post(trigger string) error {
	b.mu.Lock()
	msg, _ := b.renderLocked()
	b.mu.Unlock()

	id, err := b.discord.SendStatusMessage(b.cfg.DiscordStatusChannelID, msg)
	if err != nil {
		metrics.StatusPushErrorsTotal.Inc()
		return fmt.Errorf("failed to post status message to %s: %w", b.cfg.DiscordStatusChannelID, err)
	}
	b.mu.Lock()
	b.messageID = id
	b.mu.Unlock()
	metrics.StatusRendersTotal.WithLabelValues(trigger).Inc()
	slog.Info("status message posted", "channel_id", b.cfg.DiscordStatusChannelID, "message_id", id)
	return nil
}

func (b *Board) superseded(seq uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq != seq
}

// renderLocked must be called with mu held. Each render takes the next
// sequence number.
func (b *Board) renderLocked() (discord.StatusMessage, uint64) {
	now := b.clock.Now()
	members := b.source.Snapshot(now)
	b.page = clampPage(b.page, TotalPages(len(members), b.cfg.StatusPageSize))
	view := Render(members, b.page, b.cfg.StatusPageSize, now, b.cfg.TogetherThreshold)
	b.seq++
	return buildStatusMessage(view, b.cfg.TogetherThreshold), b.seq
}

func clampPage(page, totalPages int) int {
	if page >= totalPages {
		page = totalPages - 1
	}
	if page < 0 {
		page = 0
	}
	return page
}
