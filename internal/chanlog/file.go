package chanlog

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"
)

// dailyUTC fires at every UTC midnight.
var dailyUTC = mustSchedule("CRON_TZ=UTC 0 0 * * *")

func mustSchedule(spec string) cron.Schedule {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		panic(err)
	}
	return s
}

// Size rotation is effectively disabled for channel logs; only the daily
// boundary rotates. Backups are never pruned.
const channelFileMaxSizeMB = 1 << 20

// FileSink appends formatted records to a file rotated at 00:00 UTC.
// Close releases the file handle only; the writer reopens it on the next
// write, so a Router can hand the same writer to a later sink.
type FileSink struct {
	path   string
	format Formatter
	w      *dailyWriter
}

// NewFileSink does not touch the filesystem; the file is opened on first write.
func NewFileSink(path string, format Formatter, now func() time.Time) *FileSink {
	return newFileSink(newDailyWriter(path, now), format)
}

func newFileSink(w *dailyWriter, format Formatter) *FileSink {
	if format == nil {
		format = DefaultFormatter
	}
	return &FileSink{path: w.lj.Filename, format: format, w: w}
}

func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Emit(_ context.Context, r Record) error {
	if _, err := io.WriteString(s.w, s.format(r)); err != nil {
		return errors.Wrapf(err, "write channel log %q", s.path)
	}
	return nil
}

func (s *FileSink) Close() error { return s.w.Close() }

func newDailyWriter(path string, now func() time.Time) *dailyWriter {
	if now == nil {
		now = time.Now
	}
	return &dailyWriter{
		lj:  &lumberjack.Logger{Filename: path, MaxSize: channelFileMaxSizeMB},
		now: now,
	}
}

// dailyWriter rotates the underlying file when a write happens at or after
// the next UTC midnight.
type dailyWriter struct {
	mu   sync.Mutex
	lj   *lumberjack.Logger
	now  func() time.Time
	next time.Time
}

func (d *dailyWriter) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if d.next.IsZero() {
		// An existing file keeps the rollover of the day it was last written.
		from := now
		if fi, err := os.Stat(d.lj.Filename); err == nil {
			from = fi.ModTime()
		}
		d.next = dailyUTC.Next(from)
	}
	if !now.Before(d.next) {
		if err := d.lj.Rotate(); err != nil {
			return 0, err
		}
		d.next = dailyUTC.Next(now)
	}
	return d.lj.Write(p)
}

func (d *dailyWriter) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lj.Close()
}
