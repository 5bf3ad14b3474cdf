package app

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"botlog/internal/chanlog"
	"botlog/internal/eventbus"
	logx "botlog/pkg/logx"
)

// maxInputLine bounds a single NDJSON chat event.
const maxInputLine = 1 << 20

// inputEvent is one line of the NDJSON chat stream.
//
//	{"channel":"#go","nick":"alice","message":"hi","at":"2024-05-01T10:00:00Z"}
type inputEvent struct {
	Channel string    `json:"channel"`
	Nick    string    `json:"nick"`
	Message string    `json:"message"`
	At      time.Time `json:"at,omitempty"`
}

// Feed publishes chat events read from r onto the bus until EOF, ctx is
// done, or the app stops. Publishing waits for the recorder to keep up, so no
// event is dropped. Malformed lines are logged and skipped. It returns the
// number of events published.
func (a *App) Feed(ctx context.Context, r io.Reader) (int, error) {
	if a.sup != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(a.sup.Context(), cancel)
		defer stop()
	}
	return feed(ctx, r, a.bus, a.log)
}

func feed(ctx context.Context, r io.Reader, bus eventbus.Bus, log logx.Logger) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxInputLine)

	n, lineNo := 0, 0
	for sc.Scan() {
		if ctx.Err() != nil {
			return n, nil
		}
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var in inputEvent
		if err := json.Unmarshal([]byte(line), &in); err != nil {
			log.Warn("skipping malformed input line", logx.Int("line", lineNo), logx.Err(err))
			continue
		}
		if in.Channel == "" {
			log.Warn("skipping input line without channel", logx.Int("line", lineNo))
			continue
		}
		err := bus.PublishWait(ctx, eventbus.Event{
			Type: chanlog.EventChatMessage,
			Time: in.At,
			Data: chanlog.Event{Channel: in.Channel, Nick: in.Nick, Message: in.Message, At: in.At},
		})
		if err != nil {
			return n, nil
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, errors.Wrap(err, "read input")
	}
	return n, nil
}
