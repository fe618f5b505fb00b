package status

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/foxseedlab/dmzstatus/internal/activity"
	"github.com/foxseedlab/dmzstatus/internal/config"
	"github.com/foxseedlab/dmzstatus/internal/discord"
)

type staticSource struct {
	members []activity.MemberSnapshot
}

func (s *staticSource) Snapshot(_ time.Time) []activity.MemberSnapshot {
	return s.members
}

type mockDiscordClient struct {
	mu        sync.Mutex
	sendErr   error
	editErr   error
	sent      []discord.StatusMessage
	edits     []discord.StatusMessage
	editedIDs []string
	onEdit    func()
}

func (m *mockDiscordClient) Connect(_ context.Context) error                         { return nil }
func (m *mockDiscordClient) Close() error                                            { return nil }
func (m *mockDiscordClient) RegisterMessageHandler(_ func(discord.MessageEvent))     {}
func (m *mockDiscordClient) RegisterComponentHandler(_ func(discord.ComponentEvent)) {}
func (m *mockDiscordClient) RegisterVoiceStateUpdateHandler(_ func(discord.VoiceStateEvent)) {
}
func (m *mockDiscordClient) ListGuildMembers(_ context.Context, _ string) ([]discord.GuildMember, error) {
	return nil, nil
}
func (m *mockDiscordClient) ListVoiceParticipants(_ context.Context, _ string) ([]discord.VoiceParticipant, error) {
	return nil, nil
}
func (m *mockDiscordClient) SendStatusMessage(_ string, msg discord.StatusMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sent = append(m.sent, msg)
	return fmt.Sprintf("msg-%d", len(m.sent)), nil
}
func (m *mockDiscordClient) EditStatusMessage(_, messageID string, msg discord.StatusMessage) error {
	if m.onEdit != nil {
		m.onEdit()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.editErr != nil {
		return m.editErr
	}
	m.edits = append(m.edits, msg)
	m.editedIDs = append(m.editedIDs, messageID)
	return nil
}
func (m *mockDiscordClient) Run() error { return nil }

type componentRecorder struct {
	updates []discord.StatusMessage
	acks    int
}

func (r *componentRecorder) event(customID string) discord.ComponentEvent {
	return discord.ComponentEvent{
		GuildID:   "guild-1",
		ChannelID: "status-1",
		MessageID: "msg-1",
		CustomID:  customID,
		UserID:    "user-1",
		UpdateMessage: func(msg discord.StatusMessage) error {
			r.updates = append(r.updates, msg)
			return nil
		},
		Acknowledge: func() error {
			r.acks++
			return nil
		},
	}
}

func testMembers(n int) []activity.MemberSnapshot {
	out := make([]activity.MemberSnapshot, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, activity.MemberSnapshot{Name: fmt.Sprintf("member-%02d", i), Order: i})
	}
	return out
}

func newTestBoard(t *testing.T, members int, dc *mockDiscordClient) (*Board, *quartz.Mock) {
	t.Helper()
	cfg := &config.Config{
		DiscordGuildID:         "guild-1",
		DiscordStatusChannelID: "status-1",
		StatusPageSize:         8,
		StatusRefreshInterval:  30 * time.Second,
		TogetherThreshold:      10 * time.Minute,
	}
	clk := quartz.NewMock(t)
	clk.Set(now).MustWait(context.Background())
	return NewBoard(cfg, &staticSource{members: testMembers(members)}, dc, clk), clk
}

func startBoard(t *testing.T, board *Board) {
	t.Helper()
	if err := board.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
}

func TestBoard_StartPostsFirstPage(t *testing.T) {
	dc := &mockDiscordClient{}
	board, _ := newTestBoard(t, 20, dc)

	if err := board.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dc.sent) != 1 {
		t.Fatalf("expected one status message, got %d", len(dc.sent))
	}
	embed := dc.sent[0].Embed
	if embed.Title != "DMZ 봇 실시간 현황" || embed.Description != "페이지 1/3" {
		t.Fatalf("unexpected embed header: %q / %q", embed.Title, embed.Description)
	}
	if len(embed.Fields) != 8 {
		t.Fatalf("expected 8 fields, got %d", len(embed.Fields))
	}
	if !strings.Contains(embed.Fields[0].Value, "⏱ 10분 같이 통화: ❌") {
		t.Fatalf("unexpected field value: %q", embed.Fields[0].Value)
	}
	if len(dc.sent[0].Buttons) != 3 {
		t.Fatalf("expected three buttons, got %d", len(dc.sent[0].Buttons))
	}
}

func TestBoard_StartFailureIsRetriedOnRefresh(t *testing.T) {
	dc := &mockDiscordClient{sendErr: errors.New("discord unavailable")}
	board, _ := newTestBoard(t, 3, dc)
	ctx := context.Background()

	if err := board.Start(ctx); err == nil {
		t.Fatal("expected start error")
	}
	dc.sendErr = nil
	if err := board.Refresh(ctx); err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	if len(dc.sent) != 1 || len(dc.edits) != 0 {
		t.Fatalf("expected refresh to post instead of edit, sent=%d edits=%d", len(dc.sent), len(dc.edits))
	}
	if err := board.Refresh(ctx); err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	if len(dc.edits) != 1 || dc.editedIDs[0] != "msg-1" {
		t.Fatalf("expected second refresh to edit msg-1, got %v", dc.editedIDs)
	}
}

func TestBoard_RefreshEditError(t *testing.T) {
	dc := &mockDiscordClient{}
	board, _ := newTestBoard(t, 3, dc)
	ctx := context.Background()
	if err := board.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dc.editErr = errors.New("rate limited")

	if err := board.Refresh(ctx); err == nil {
		t.Fatal("expected edit error to be returned")
	}
}

func TestBoard_PagingClampsAtBothEnds(t *testing.T) {
	dc := &mockDiscordClient{}
	board, _ := newTestBoard(t, 17, dc)
	rec := &componentRecorder{}
	startBoard(t, board)

	board.HandleComponent(rec.event(ButtonPrevious))
	if rec.acks != 1 || len(rec.updates) != 0 || board.Page() != 0 {
		t.Fatalf("prev on first page must only acknowledge, acks=%d updates=%d page=%d", rec.acks, len(rec.updates), board.Page())
	}

	board.HandleComponent(rec.event(ButtonNext))
	board.HandleComponent(rec.event(ButtonNext))
	board.HandleComponent(rec.event(ButtonNext))
	if board.Page() != 2 {
		t.Fatalf("expected to stop on the last page, got %d", board.Page())
	}
	if len(rec.updates) != 2 || rec.acks != 2 {
		t.Fatalf("expected 2 updates and 2 acks, got updates=%d acks=%d", len(rec.updates), rec.acks)
	}
	last := rec.updates[len(rec.updates)-1].Embed
	if last.Description != "페이지 3/3" || len(last.Fields) != 1 {
		t.Fatalf("unexpected last page: %q with %d fields", last.Description, len(last.Fields))
	}

	board.HandleComponent(rec.event(ButtonPrevious))
	if board.Page() != 1 {
		t.Fatalf("expected page 1 after prev, got %d", board.Page())
	}
}

func TestBoard_RefreshButtonKeepsPage(t *testing.T) {
	dc := &mockDiscordClient{}
	board, _ := newTestBoard(t, 17, dc)
	rec := &componentRecorder{}
	startBoard(t, board)

	board.HandleComponent(rec.event(ButtonNext))
	board.HandleComponent(rec.event(ButtonRefresh))

	if board.Page() != 1 {
		t.Fatalf("refresh must keep the page, got %d", board.Page())
	}
	if len(rec.updates) != 2 || rec.updates[1].Embed.Description != "페이지 2/3" {
		t.Fatalf("unexpected refresh render: %+v", rec.updates)
	}
}

func TestBoard_IgnoresForeignComponents(t *testing.T) {
	dc := &mockDiscordClient{}
	board, _ := newTestBoard(t, 17, dc)
	rec := &componentRecorder{}
	startBoard(t, board)

	other := rec.event(ButtonNext)
	other.GuildID = "guild-2"
	board.HandleComponent(other)
	board.HandleComponent(rec.event("some-other-bot-button"))

	if rec.acks != 0 || len(rec.updates) != 0 || board.Page() != 0 {
		t.Fatalf("expected foreign interactions to be ignored, acks=%d updates=%d", rec.acks, len(rec.updates))
	}
}

func TestBoard_EmptyWatchedSet(t *testing.T) {
	dc := &mockDiscordClient{}
	board, _ := newTestBoard(t, 0, dc)
	rec := &componentRecorder{}

	if err := board.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dc.sent[0].Embed.Description != "페이지 1/1" {
		t.Fatalf("unexpected description: %q", dc.sent[0].Embed.Description)
	}
	board.HandleComponent(rec.event(ButtonNext))
	if rec.acks != 1 {
		t.Fatalf("expected next on a single page to acknowledge, got %d acks", rec.acks)
	}
}

func TestBoard_StaleMessageClickOnlyAcknowledges(t *testing.T) {
	dc := &mockDiscordClient{}
	board, _ := newTestBoard(t, 17, dc)
	rec := &componentRecorder{}
	startBoard(t, board)

	old := rec.event(ButtonNext)
	old.MessageID = "msg-from-previous-run"
	board.HandleComponent(old)

	if rec.acks != 1 || len(rec.updates) != 0 || board.Page() != 0 {
		t.Fatalf("expected a stale click to only acknowledge, acks=%d updates=%d page=%d", rec.acks, len(rec.updates), board.Page())
	}
}

func TestBoard_ClickBeforeFirstPostOnlyAcknowledges(t *testing.T) {
	dc := &mockDiscordClient{}
	board, _ := newTestBoard(t, 17, dc)
	rec := &componentRecorder{}

	board.HandleComponent(rec.event(ButtonNext))

	if rec.acks != 1 || len(rec.updates) != 0 || board.Page() != 0 {
		t.Fatalf("expected click without a posted message to only acknowledge, acks=%d updates=%d page=%d", rec.acks, len(rec.updates), board.Page())
	}
}

func TestBoard_DeletedMessageIsReposted(t *testing.T) {
	dc := &mockDiscordClient{}
	board, _ := newTestBoard(t, 3, dc)
	ctx := context.Background()
	startBoard(t, board)

	dc.editErr = fmt.Errorf("404 Not Found: %w", discord.ErrMessageNotFound)
	if err := board.Refresh(ctx); !errors.Is(err, discord.ErrMessageNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
	dc.editErr = nil
	if err := board.Refresh(ctx); err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	if len(dc.sent) != 2 || len(dc.edits) != 0 {
		t.Fatalf("expected the refresh after a 404 to repost, sent=%d edits=%d", len(dc.sent), len(dc.edits))
	}
	if err := board.Refresh(ctx); err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	if len(dc.editedIDs) != 1 || dc.editedIDs[0] != "msg-2" {
		t.Fatalf("expected later refreshes to edit the reposted message, got %v", dc.editedIDs)
	}
}

func TestBoard_OtherEditErrorsKeepMessage(t *testing.T) {
	dc := &mockDiscordClient{}
	board, _ := newTestBoard(t, 3, dc)
	ctx := context.Background()
	startBoard(t, board)

	dc.editErr = errors.New("rate limited")
	_ = board.Refresh(ctx)
	dc.editErr = nil
	if err := board.Refresh(ctx); err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	if len(dc.sent) != 1 || len(dc.editedIDs) != 1 || dc.editedIDs[0] != "msg-1" {
		t.Fatalf("expected a transient error to keep editing msg-1, sent=%d edits=%v", len(dc.sent), dc.editedIDs)
	}
}

func TestBoard_ButtonsAnswerDuringSlowEdit(t *testing.T) {
	dc := &mockDiscordClient{}
	board, _ := newTestBoard(t, 17, dc)
	rec := &componentRecorder{}
	startBoard(t, board)

	clicked := make(chan struct{})
	dc.onEdit = func() {
		// Runs while Refresh is inside the Discord call.
		board.HandleComponent(rec.event(ButtonNext))
		close(clicked)
	}

	refreshed := make(chan error, 1)
	go func() { refreshed <- board.Refresh(context.Background()) }()
	select {
	case <-clicked:
	case <-time.After(2 * time.Second):
		t.Fatal("button handling blocked behind an in-flight edit")
	}
	if err := <-refreshed; err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	if len(rec.updates) != 1 || board.Page() != 1 {
		t.Fatalf("expected the click to page forward, updates=%d page=%d", len(rec.updates), board.Page())
	}
}

func TestBoard_UpdateCallbackCanReadBoard(t *testing.T) {
	dc := &mockDiscordClient{}
	board, _ := newTestBoard(t, 17, dc)
	startBoard(t, board)

	var pageSeen int
	event := discord.ComponentEvent{
		GuildID:   "guild-1",
		MessageID: "msg-1",
		CustomID:  ButtonNext,
		UpdateMessage: func(discord.StatusMessage) error {
			pageSeen = board.Page()
			return nil
		},
		Acknowledge: func() error { return nil },
	}
	done := make(chan struct{})
	go func() {
		board.HandleComponent(event)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("board lock held across the interaction response")
	}
	if pageSeen != 1 {
		t.Fatalf("expected page 1 during the response, got %d", pageSeen)
	}
}

func TestBoard_RunStopsOnCancel(t *testing.T) {
	dc := &mockDiscordClient{}
	board, clk := newTestBoard(t, 3, dc)
	startBoard(t, board)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runCtx, stop := context.WithCancel(ctx)

	tickerTrap := clk.Trap().TickerFunc("status", "refresh")
	defer tickerTrap.Close()

	done := make(chan struct{})
	go func() {
		board.Run(runCtx)
		close(done)
	}()
	tickerTrap.MustWait(ctx).MustRelease(ctx)

	clk.Advance(30 * time.Second).MustWait(ctx)
	dc.mu.Lock()
	edits := len(dc.edits)
	dc.mu.Unlock()
	if edits != 1 {
		t.Fatalf("expected one refresh per interval, got %d", edits)
	}

	stop()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("refresh loop did not stop after cancel")
	}
}
