package status

import (
	"slices"
	"time"

	"github.com/foxseedlab/dmzstatus/internal/activity"
)

const (
	notObserved   = "–"
	elapsedSuffix = "전"
)

type Row struct {
	Name           string
	LastText       string
	VoiceTotal     string
	LastVoiceLeave string
	Together       bool
}

// View is one rendered page of the status board.
type View struct {
	Page        int
	TotalPages  int
	Rows        []Row
	GeneratedAt time.Time
}

// Render sorts members by most recent activity and returns the requested
// zero-based page. Out-of-range pages yield no rows; callers clamp.
func Render(members []activity.MemberSnapshot, page, pageSize int, now time.Time, togetherThreshold time.Duration) View {
	if pageSize < 1 {
		pageSize = 1
	}
	sorted := slices.Clone(members)
	slices.SortStableFunc(sorted, compareByRecentActivity)

	view := View{
		Page:        page,
		TotalPages:  TotalPages(len(sorted), pageSize),
		Rows:        []Row{},
		GeneratedAt: now,
	}
	if page < 0 {
		return view
	}
	start := page * pageSize
	if start >= len(sorted) {
		return view
	}
	end := min(start+pageSize, len(sorted))
	for _, m := range sorted[start:end] {
		view.Rows = append(view.Rows, Row{
			Name:           m.Name,
			LastText:       sinceText(m.LastTextAt, now),
			VoiceTotal:     HumanizeTotal(m.VoiceDuration),
			LastVoiceLeave: sinceText(m.LastVoiceLeaveAt, now),
			Together:       m.Together(now, togetherThreshold),
		})
	}
	return view
}

// TotalPages is ceil(count/pageSize), never less than one.
func TotalPages(count, pageSize int) int {
	if pageSize < 1 {
		pageSize = 1
	}
	if count <= 0 {
		return 1
	}
	return (count + pageSize - 1) / pageSize
}

// compareByRecentActivity orders newest activity first. Never-observed members
// sort last; ties fall back to watched order.
func compareByRecentActivity(a, b activity.MemberSnapshot) int {
	at, aok := a.LastActivity()
	bt, bok := b.LastActivity()
	switch {
	case aok && !bok:
		return -1
	case !aok && bok:
		return 1
	case aok && bok && !at.Equal(bt):
		if at.After(bt) {
			return -1
		}
		return 1
	}
	switch {
	case a.Order < b.Order:
		return -1
	case a.Order > b.Order:
		return 1
	}
	return 0
}

func sinceText(at *time.Time, now time.Time) string {
	if at == nil {
		return notObserved
	}
	return HumanizeElapsed(now.Sub(*at)) + elapsedSuffix
}
