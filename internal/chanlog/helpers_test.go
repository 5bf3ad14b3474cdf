package chanlog

import (
	"context"
	"os"
	"sync"
	"time"

	"botlog/internal/storage"
)

// fakeStore records calls made by DBSink.
type fakeStore struct {
	mu       sync.Mutex
	inserts  []storage.ChannelLog
	indexes  []storage.IndexSpec
	indexErr error
	delay    time.Duration
}

func (f *fakeStore) InsertChannelLog(_ context.Context, doc storage.ChannelLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, doc)
	return nil
}

func (f *fakeStore) EnsureIndex(_ context.Context, spec storage.IndexSpec) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexes = append(f.indexes, spec)
	return nil
}

func (f *fakeStore) Recent(context.Context, storage.Query) ([]storage.ChannelLog, error) {
	return nil, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) counts() (inserts, indexes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserts), len(f.indexes)
}

// countingFS delegates to the real filesystem and records calls.
type countingFS struct {
	mu       sync.Mutex
	stats    []string
	mkdirs   []string
	mkdirErr error
}

func (c *countingFS) Stat(name string) (os.FileInfo, error) {
	c.mu.Lock()
	c.stats = append(c.stats, name)
	c.mu.Unlock()
	return os.Stat(name)
}

func (c *countingFS) MkdirAll(path string, perm os.FileMode) error {
	c.mu.Lock()
	c.mkdirs = append(c.mkdirs, path)
	err := c.mkdirErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return os.MkdirAll(path, perm)
}

func (c *countingFS) calls() (stats, mkdirs int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stats), len(c.mkdirs)
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}
