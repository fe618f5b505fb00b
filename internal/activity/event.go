package activity

import (
	"fmt"
	"time"
)

type EventKind int

const (
	EventText EventKind = iota + 1
	EventVoiceJoin
	EventVoiceLeave
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventVoiceJoin:
		return "voice_join"
	case EventVoiceLeave:
		return "voice_leave"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is a single observation delivered by the platform adapter.
type Event struct {
	Kind   EventKind
	Member string
	At     time.Time
}

func TextMessage(member string, at time.Time) Event {
	return Event{Kind: EventText, Member: member, At: at}
}

func VoiceJoin(member string, at time.Time) Event {
	return Event{Kind: EventVoiceJoin, Member: member, At: at}
}

func VoiceLeave(member string, at time.Time) Event {
	return Event{Kind: EventVoiceLeave, Member: member, At: at}
}
