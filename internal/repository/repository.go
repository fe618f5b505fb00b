package repository

import (
	"context"
	"errors"
	"time"
)

// TimestampTable names a table holding one timestamp per member.
type TimestampTable string

const (
	TableLastText       TimestampTable = "last_text"
	TableLastVoiceLeave TimestampTable = "last_voice_leave"

	// TableVoiceSeconds is the logical name of the cumulative voice table. It
	// is only used for logging and metrics labels.
	TableVoiceSeconds = "cumulative_voice_seconds"
)

var ErrUnknownTable = errors.New("unknown activity table")

func (t TimestampTable) Valid() bool {
	switch t {
	case TableLastText, TableLastVoiceLeave:
		return true
	default:
		return false
	}
}

// TimestampRepository stores the last text and last voice-leave times.
// A nil timestamp with a nil error means the member was never observed.
type TimestampRepository interface {
	GetTimestamp(ctx context.Context, table TimestampTable, member string) (*time.Time, error)
	SetTimestamp(ctx context.Context, table TimestampTable, member string, at time.Time) error
}

// VoiceDurationRepository stores cumulative voice seconds of completed sessions.
type VoiceDurationRepository interface {
	GetVoiceSeconds(ctx context.Context, member string) (*float64, error)
	SetVoiceSeconds(ctx context.Context, member string, seconds float64) error
}

type Repository interface {
	TimestampRepository
	VoiceDurationRepository
	Ping(ctx context.Context) error
	Close() error
}
