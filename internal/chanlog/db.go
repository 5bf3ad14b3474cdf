package chanlog

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"botlog/internal/storage"
)

// ChannelLogIndexes are the compound indexes DBSink provisions:
// recent messages in a channel, by a person, and by a person in a channel.
var ChannelLogIndexes = []storage.IndexSpec{
	{Keys: []storage.IndexKey{{Field: "channel", Direction: storage.Asc}, {Field: "created", Direction: storage.Desc}}},
	{Keys: []storage.IndexKey{{Field: "nick", Direction: storage.Asc}, {Field: "created", Direction: storage.Desc}}},
	{Keys: []storage.IndexKey{{Field: "nick", Direction: storage.Asc}, {Field: "channel", Direction: storage.Asc}, {Field: "created", Direction: storage.Desc}}},
}

// indexGuard records whether the indexes have been ensured. It is shared by
// every DBSink of a Router so provisioning happens once per process.
type indexGuard struct {
	mu   sync.Mutex
	done bool
}

// DBSink writes records for one channel to the channel_logs table.
// With a nil store it discards everything.
type DBSink struct {
	channel string
	store   storage.Store
	guard   *indexGuard
}

func NewDBSink(channel string, store storage.Store) *DBSink {
	return newDBSink(channel, store, &indexGuard{})
}

func newDBSink(channel string, store storage.Store, guard *indexGuard) *DBSink {
	return &DBSink{channel: channel, store: store, guard: guard}
}

func (s *DBSink) Channel() string { return s.channel }

// Indexed reports whether the indexes have been ensured.
func (s *DBSink) Indexed() bool {
	s.guard.mu.Lock()
	defer s.guard.mu.Unlock()
	return s.guard.done
}

func (s *DBSink) Emit(ctx context.Context, r Record) error {
	if s.store == nil {
		return nil
	}
	if err := s.ensureOnce(ctx); err != nil {
		return err
	}
	return s.store.InsertChannelLog(ctx, storage.ChannelLog{
		Channel: s.channel,
		Created: storage.EpochSeconds(r.Created),
		Nick:    r.Nick,
		Message: r.Message,
	})
}

// ensureOnce holds the guard across the round trips so concurrent first
// emits issue the index requests only once. A failure leaves the guard unset.
func (s *DBSink) ensureOnce(ctx context.Context) error {
	s.guard.mu.Lock()
	defer s.guard.mu.Unlock()
	if s.guard.done {
		return nil
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		return err
	}
	s.guard.done = true
	return nil
}

// EnsureIndexes issues every spec in ChannelLogIndexes. Each request is
// idempotent, so calling it again is harmless.
func (s *DBSink) EnsureIndexes(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	for _, spec := range ChannelLogIndexes {
		if err := s.store.EnsureIndex(ctx, spec); err != nil {
			return errors.Wrapf(err, "ensure channel log index %s", spec.Name())
		}
	}
	return nil
}

// Close is a no-op; the store belongs to the process, not the sink.
func (s *DBSink) Close() error { return nil }
