package activity

import "time"

// Member is the durable activity record of one watched member. Absent
// timestamps mean the event was never observed.
type Member struct {
	LastTextAt       *time.Time
	LastVoiceLeaveAt *time.Time
	// VoiceDuration is the sum of completed voice sessions.
	VoiceDuration time.Duration
	// VoiceJoinedAt is set while a voice session is open.
	VoiceJoinedAt *time.Time
}

func (m Member) InVoice() bool {
	return m.VoiceJoinedAt != nil
}

// MemberSnapshot is a point-in-time view of one member as seen by readers.
type MemberSnapshot struct {
	Name string
	// Order is the member's position in the watched list.
	Order            int
	LastTextAt       *time.Time
	LastVoiceLeaveAt *time.Time
	// VoiceDuration is the effective duration: completed sessions plus the
	// open session up to the snapshot time.
	VoiceDuration time.Duration
	VoiceJoinedAt *time.Time
}

// LastActivity returns the later of the last text and last voice-leave times.
func (s MemberSnapshot) LastActivity() (time.Time, bool) {
	switch {
	case s.LastTextAt == nil && s.LastVoiceLeaveAt == nil:
		return time.Time{}, false
	case s.LastTextAt == nil:
		return *s.LastVoiceLeaveAt, true
	case s.LastVoiceLeaveAt == nil:
		return *s.LastTextAt, true
	case s.LastVoiceLeaveAt.After(*s.LastTextAt):
		return *s.LastVoiceLeaveAt, true
	default:
		return *s.LastTextAt, true
	}
}

// Together reports whether the open voice session has lasted longer than threshold.
func (s MemberSnapshot) Together(now time.Time, threshold time.Duration) bool {
	if s.VoiceJoinedAt == nil {
		return false
	}
	return now.Sub(*s.VoiceJoinedAt) > threshold
}
