package storage

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrDisabled     = errors.New("storage disabled")
	ErrUnknownField = errors.New("storage: unknown field")
)

// ChannelLogsTable holds one row per channel activity record.
const ChannelLogsTable = "channel_logs"

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL at DSN
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ChannelLog is the persisted shape of one channel activity record.
// All four fields are always written.
type ChannelLog struct {
	Channel string
	Created float64 // epoch seconds
	Nick    string
	Message string
}

// Store is the persistence API used by the channel log sinks.
type Store interface {
	InsertChannelLog(ctx context.Context, doc ChannelLog) error
	// EnsureIndex creates the index if it does not exist yet.
	EnsureIndex(ctx context.Context, spec IndexSpec) error
	Recent(ctx context.Context, q Query) ([]ChannelLog, error)
	Close() error
}

// Query selects the most recent records, newest first.
// Empty Channel/Nick match everything; a zero Before means "now".
type Query struct {
	Channel string
	Nick    string
	Before  time.Time
	Limit   int
}

const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 1000
)

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultQueryLimit
	case q.Limit > MaxQueryLimit:
		return MaxQueryLimit
	default:
		return q.Limit
	}
}

type Direction int

const (
	Asc  Direction = 1
	Desc Direction = -1
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

type IndexKey struct {
	Field     string
	Direction Direction
}

// IndexSpec is an ordered compound index over channel_logs columns.
type IndexSpec struct {
	Keys []IndexKey
}

// Name is derived from the keys, so the same spec always maps to the same index.
func (s IndexSpec) Name() string {
	var b strings.Builder
	b.WriteString("ix_")
	b.WriteString(ChannelLogsTable)
	for _, k := range s.Keys {
		b.WriteByte('_')
		b.WriteString(k.Field)
		b.WriteByte('_')
		b.WriteString(k.Direction.String())
	}
	return b.String()
}

var channelLogFields = map[string]bool{
	"channel": true,
	"created": true,
	"nick":    true,
	"message": true,
}

func (s IndexSpec) validate() error {
	if len(s.Keys) == 0 {
		return errors.New("storage: empty index spec")
	}
	for _, k := range s.Keys {
		if !channelLogFields[k.Field] {
			return errors.Wrapf(ErrUnknownField, "index field %q", k.Field)
		}
	}
	return nil
}

// EpochSeconds converts t to fractional seconds since the Unix epoch.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromEpochSeconds is the inverse of EpochSeconds (microsecond precision).
func FromEpochSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*1e3)
}
