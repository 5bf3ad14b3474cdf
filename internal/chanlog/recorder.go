package chanlog

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"botlog/internal/eventbus"
	logx "botlog/pkg/logx"
)

// EventChatMessage is the bus event type carrying an Event in Data.
const EventChatMessage = "chat.message"

// Event is one chat message seen by the bot.
type Event struct {
	Channel string
	Nick    string
	Message string
	At      time.Time
}

// Recorder feeds chat activity into channel loggers and keeps their failures
// away from the caller: errors are counted and logged (rate limited), never
// returned.
type Recorder struct {
	router  *Router
	log     logx.Logger
	limiter *rate.Limiter

	failures atomic.Uint64
}

func NewRecorder(router *Router, log logx.Logger) *Recorder {
	return &Recorder{
		router:  router,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Record writes ev to its channel logger.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	l, err := r.router.Logger(ev.Channel)
	if err == nil {
		err = l.Emit(ctx, Record{Created: ev.At, Nick: ev.Nick, Message: ev.Message})
	}
	if err == nil {
		return
	}
	n := r.failures.Add(1)
	if r.limiter.Allow() {
		r.log.Warn("channel log write failed",
			logx.String("channel", ev.Channel),
			logx.Uint64("failures", n),
			logx.Err(err),
		)
	}
}

// Failures returns the number of records that could not be written.
func (r *Recorder) Failures() uint64 { return r.failures.Load() }

// SubscribeBuffer is the bus buffer used by Run.
const SubscribeBuffer = 1024

// Run records every chat.message event from bus until ctx is done.
func (r *Recorder) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(SubscribeBuffer)
	defer unsub()
	return r.Consume(ctx, ch)
}

// Consume records chat.message events from an existing subscription until ch
// is closed or ctx is done. On ctx done, events already buffered in ch are
// still written before returning. ctx only bounds the wait; writes never
// observe its cancellation, so a record taken off ch is not lost to shutdown.
func (r *Recorder) Consume(ctx context.Context, ch <-chan eventbus.Event) error {
	wctx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			r.drain(wctx, ch)
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(wctx, e)
		}
	}
}

func (r *Recorder) drain(ctx context.Context, ch <-chan eventbus.Event) {
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			r.handle(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) handle(ctx context.Context, e eventbus.Event) {
	if e.Type != EventChatMessage {
		return
	}
	ev, ok := e.Data.(Event)
	if !ok {
		return
	}
	if ev.At.IsZero() {
		ev.At = e.Time
	}
	r.Record(ctx, ev)
}
