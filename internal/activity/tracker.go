package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/dmzstatus/internal/metrics"
	"github.com/foxseedlab/dmzstatus/internal/repository"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPersistTimeout  = 5 * time.Second
	initialLoadConcurrency = 8
)

// Tracker owns the in-memory activity state of every watched member.
//
// mu guards the member map and every record in it; it is only held for the
// in-memory transition, never across I/O. Each member additionally has a
// write lock that is held from mutation until persistence completes, so
// events for one member apply and persist in arrival order while different
// members proceed independently.
type Tracker struct {
	repo           repository.Repository
	persistTimeout time.Duration

	mu      sync.RWMutex
	members map[string]*memberState
	order   []string
}

type memberState struct {
	writeMu sync.Mutex
	order   int
	record  Member
}

func NewTracker(repo repository.Repository, persistTimeout time.Duration) *Tracker {
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}
	return &Tracker{
		repo:           repo,
		persistTimeout: persistTimeout,
		members:        make(map[string]*memberState),
	}
}

// Initialize seeds the watched set from the repository and opens a voice
// session at now for every watched member already connected. Time spent
// connected before now is not counted. Duplicate names keep their first
// position.
//
// A record that cannot be read falls back to "never observed". An
// unreachable store or an expired ctx fails the whole call and leaves the
// current state untouched, so stored totals are never replaced by zeros.
func (t *Tracker) Initialize(ctx context.Context, watched, connected []string, now time.Time) error {
	pingCtx, cancel := context.WithTimeout(ctx, t.persistTimeout)
	err := t.repo.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("activity store is unreachable: %w", err)
	}

	order := make([]string, 0, len(watched))
	seen := make(map[string]struct{}, len(watched))
	for _, name := range watched {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		order = append(order, name)
	}

	records := make([]Member, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(initialLoadConcurrency)
	for i, name := range order {
		g.Go(func() error {
			m, err := t.load(gctx, name)
			if err != nil {
				return err
			}
			records[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to load activity records: %w", err)
	}

	members := make(map[string]*memberState, len(order))
	for i, name := range order {
		members[name] = &memberState{order: i, record: records[i]}
	}
	open := 0
	for _, name := range connected {
		st, ok := members[name]
		if !ok || st.record.InVoice() {
			continue
		}
		joinedAt := now
		st.record.VoiceJoinedAt = &joinedAt
		open++
	}

	t.mu.Lock()
	t.members = members
	t.order = order
	t.mu.Unlock()

	metrics.WatchedMembers.Set(float64(len(order)))
	metrics.OpenVoiceSessions.Set(float64(open))
	slog.Info("activity tracker initialized", "watched_members", len(order), "open_voice_sessions", open)
	return nil
}

func (t *Tracker) load(ctx context.Context, name string) (Member, error) {
	var (
		m   Member
		err error
	)
	if m.LastTextAt, err = t.loadTimestamp(ctx, repository.TableLastText, name); err != nil {
		return Member{}, err
	}
	if m.LastVoiceLeaveAt, err = t.loadTimestamp(ctx, repository.TableLastVoiceLeave, name); err != nil {
		return Member{}, err
	}

	readCtx, cancel := context.WithTimeout(ctx, t.persistTimeout)
	defer cancel()
	seconds, err := t.repo.GetVoiceSeconds(readCtx, name)
	if err != nil {
		metrics.PersistenceErrorsTotal.WithLabelValues("get", repository.TableVoiceSeconds).Inc()
		if loadAborted(readCtx, err) {
			return Member{}, fmt.Errorf("reading voice seconds for %q: %w", name, err)
		}
		slog.Error("failed to load voice seconds; defaulting to zero", "error", err, "member", name)
		return m, nil
	}
	if seconds != nil && *seconds > 0 {
		m.VoiceDuration = time.Duration(*seconds * float64(time.Second))
	}
	return m, nil
}

func (t *Tracker) loadTimestamp(ctx context.Context, table repository.TimestampTable, name string) (*time.Time, error) {
	readCtx, cancel := context.WithTimeout(ctx, t.persistTimeout)
	defer cancel()
	at, err := t.repo.GetTimestamp(readCtx, table, name)
	if err != nil {
		metrics.PersistenceErrorsTotal.WithLabelValues("get", string(table)).Inc()
		if loadAborted(readCtx, err) {
			return nil, fmt.Errorf("reading %s for %q: %w", table, name, err)
		}
		slog.Error("failed to load activity timestamp; treating as never observed", "error", err, "member", name, "table", table)
		return nil, nil
	}
	return at, nil
}

// loadAborted reports whether a read failed because its deadline passed or
// the load was cancelled, as opposed to one record being unreadable.
func loadAborted(readCtx context.Context, err error) bool {
	return readCtx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// Apply dispatches one event and reports whether it changed state.
func (t *Tracker) Apply(ctx context.Context, ev Event) bool {
	var applied bool
	switch ev.Kind {
	case EventText:
		applied = t.RecordText(ctx, ev.Member, ev.At)
	case EventVoiceJoin:
		applied = t.RecordVoiceJoin(ctx, ev.Member, ev.At)
	case EventVoiceLeave:
		applied = t.RecordVoiceLeave(ctx, ev.Member, ev.At)
	default:
		slog.Warn("ignoring activity event of unknown kind", "kind", ev.Kind, "member", ev.Member)
	}
	outcome := "ignored"
	if applied {
		outcome = "applied"
	}
	metrics.EventsTotal.WithLabelValues(ev.Kind.String(), outcome).Inc()
	return applied
}

func (t *Tracker) RecordText(ctx context.Context, member string, now time.Time) bool {
	st := t.lookup(member)
	if st == nil {
		return false
	}
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	at := now
	t.mu.Lock()
	st.record.LastTextAt = &at
	t.mu.Unlock()

	t.persistTimestamp(ctx, repository.TableLastText, member, now)
	return true
}

// RecordVoiceJoin opens a voice session. A join while a session is already
// open is ignored so redundant platform transitions do not reset accrual.
func (t *Tracker) RecordVoiceJoin(_ context.Context, member string, now time.Time) bool {
	st := t.lookup(member)
	if st == nil {
		return false
	}
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if st.record.InVoice() {
		slog.Debug("duplicate voice join ignored", "member", member, "joined_at", *st.record.VoiceJoinedAt)
		return false
	}
	joinedAt := now
	st.record.VoiceJoinedAt = &joinedAt
	metrics.OpenVoiceSessions.Inc()
	return true
}

// RecordVoiceLeave closes the open voice session, folding its length into the
// cumulative duration. A leave without an open session is ignored.
func (t *Tracker) RecordVoiceLeave(ctx context.Context, member string, now time.Time) bool {
	st := t.lookup(member)
	if st == nil {
		return false
	}
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	t.mu.Lock()
	if !st.record.InVoice() {
		t.mu.Unlock()
		slog.Debug("voice leave without open session ignored", "member", member)
		return false
	}
	elapsed := now.Sub(*st.record.VoiceJoinedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	leftAt := now
	st.record.VoiceDuration += elapsed
	st.record.LastVoiceLeaveAt = &leftAt
	st.record.VoiceJoinedAt = nil
	total := st.record.VoiceDuration
	t.mu.Unlock()
	metrics.OpenVoiceSessions.Dec()

	t.persistVoiceSeconds(ctx, member, total)
	t.persistTimestamp(ctx, repository.TableLastVoiceLeave, member, now)
	return true
}

// Snapshot returns every watched member in watched order. It never mutates
// state and is safe to call concurrently with writers.
func (t *Tracker) Snapshot(now time.Time) []MemberSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]MemberSnapshot, 0, len(t.order))
	for _, name := range t.order {
		st := t.members[name]
		rec := st.record
		effective := rec.VoiceDuration
		if rec.VoiceJoinedAt != nil {
			if open := now.Sub(*rec.VoiceJoinedAt); open > 0 {
				effective += open
			}
		}
		out = append(out, MemberSnapshot{
			Name:             name,
			Order:            st.order,
			LastTextAt:       rec.LastTextAt,
			LastVoiceLeaveAt: rec.LastVoiceLeaveAt,
			VoiceDuration:    effective,
			VoiceJoinedAt:    rec.VoiceJoinedAt,
		})
	}
	return out
}

// Member returns a copy of one member's record.
func (t *Tracker) Member(name string) (Member, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.members[name]
	if !ok {
		return Member{}, false
	}
	return st.record, true
}

func (t *Tracker) Watched() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

func (t *Tracker) lookup(member string) *memberState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.members[member]
}

func (t *Tracker) persistTimestamp(ctx context.Context, table repository.TimestampTable, member string, at time.Time) {
	writeCtx, cancel := context.WithTimeout(ctx, t.persistTimeout)
	defer cancel()
	if err := t.repo.SetTimestamp(writeCtx, table, member, at); err != nil {
		metrics.PersistenceErrorsTotal.WithLabelValues("set", string(table)).Inc()
		slog.Error("failed to persist activity timestamp", "error", err, "member", member, "table", table)
	}
}

func (t *Tracker) persistVoiceSeconds(ctx context.Context, member string, total time.Duration) {
	writeCtx, cancel := context.WithTimeout(ctx, t.persistTimeout)
	defer cancel()
	if err := t.repo.SetVoiceSeconds(writeCtx, member, total.Seconds()); err != nil {
		metrics.PersistenceErrorsTotal.WithLabelValues("set", repository.TableVoiceSeconds).Inc()
		slog.Error("failed to persist voice seconds", "error", err, "member", member, "seconds", total.Seconds())
	}
}
