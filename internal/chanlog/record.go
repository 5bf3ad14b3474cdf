package chanlog

import (
	"context"
	"time"
)

// Record is one unit of channel activity.
type Record struct {
	Channel string
	Created time.Time
	Nick    string
	Message string
}

// Sink is the single destination attached to a channel Logger.
type Sink interface {
	Emit(ctx context.Context, r Record) error
	Close() error
}

// TimestampLayout matches the classic "asctime" layout.
const TimestampLayout = "2006-01-02 15:04:05,000"

// Formatter renders a record as one line, including the trailing newline.
type Formatter func(r Record) string

// DefaultFormatter renders "timestamp - nick - message" in UTC.
func DefaultFormatter(r Record) string {
	return r.Created.UTC().Format(TimestampLayout) + " - " + r.Nick + " - " + r.Message + "\n"
}
