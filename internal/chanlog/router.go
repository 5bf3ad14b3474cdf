package chanlog

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"botlog/internal/storage"
	logx "botlog/pkg/logx"
)

// LoggerPrefix namespaces channel loggers away from diagnostic loggers.
const LoggerPrefix = "channel_logger/"

// LogFileName is the active file inside each channel directory.
const LogFileName = "log.txt"

var ErrInvalidChannel = errors.New("chanlog: invalid channel name")

// Config selects where channel activity goes.
type Config struct {
	Dir string
	DB  bool
}

// FS is the part of the filesystem the Router touches.
type FS interface {
	Stat(name string) (os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
}

type osFS struct{}

func (osFS) Stat(name string) (os.FileInfo, error)        { return os.Stat(name) }
func (osFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

type Option func(*Router)

func WithFS(fs FS) Option { return func(r *Router) { r.fs = fs } }

func WithClock(now func() time.Time) Option { return func(r *Router) { r.now = now } }

func WithLogger(log logx.Logger) Option { return func(r *Router) { r.log = log } }

// Router owns the channel logger registry.
//
// Logger(channel) is idempotent: the first call builds the logger and its
// sink, later calls return the same *Logger.
type Router struct {
	mu      sync.Mutex
	cfg     Config
	store   storage.Store
	fs      FS
	now     func() time.Time
	log     logx.Logger
	guard   *indexGuard
	loggers map[string]*Logger

	// writers keeps one daily writer per file path for the router's lifetime.
	// Each lumberjack.Logger owns a background goroutine that Close does not
	// stop, so writers are reused across Apply instead of recreated.
	writers map[string]*dailyWriter
}

// NewRouter builds a router. store may be nil (no database configured).
func NewRouter(cfg Config, store storage.Store, opts ...Option) *Router {
	r := &Router{
		cfg:     cfg,
		store:   store,
		fs:      osFS{},
		now:     time.Now,
		log:     logx.Nop(),
		guard:   &indexGuard{},
		loggers: map[string]*Logger{},
		writers: map[string]*dailyWriter{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func LoggerName(channel string) string { return LoggerPrefix + channel }

// Logger returns the logger for channel, creating it on first use.
// Errors (invalid name, directory creation) are returned and nothing is
// cached, so a later call retries.
func (r *Router) Logger(channel string) (*Logger, error) {
	name := LoggerName(channel)

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.loggers[name]; ok {
		return l, nil
	}
	s, err := r.newSink(channel, r.cfg)
	if err != nil {
		return nil, err
	}
	l := &Logger{name: name, channel: channel, now: r.now, sink: s}
	r.loggers[name] = l
	r.log.Debug("channel logger created", logx.String("channel", channel), logx.Bool("db", r.cfg.DB))
	return l, nil
}

// Channels returns the channels that have a logger, sorted.
func (r *Router) Channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.loggers))
	for _, l := range r.loggers {
		out = append(out, l.channel)
	}
	sort.Strings(out)
	return out
}

// Apply rewires every existing logger to the sink implied by cfg.
// The old sink is replaced, never kept alongside. Loggers whose new sink
// cannot be built keep the old one.
func (r *Router) Apply(cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg == r.cfg {
		return nil
	}
	r.cfg = cfg

	var errs error
	for _, l := range r.loggers {
		s, err := r.newSink(l.channel, cfg)
		if err != nil {
			errs = errors.CombineErrors(errs, err)
			continue
		}
		if err := l.swap(s); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

// Close closes every sink. Loggers stay registered but discard records.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs error
	for _, l := range r.loggers {
		if err := l.swap(nil); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

func (r *Router) newSink(channel string, cfg Config) (Sink, error) {
	if cfg.DB {
		return newDBSink(channel, r.store, r.guard), nil
	}
	if err := validateChannel(channel); err != nil {
		return nil, err
	}
	dir := filepath.Join(cfg.Dir, channel)
	if _, err := r.fs.Stat(dir); err != nil {
		if err := r.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create channel log dir %q", dir)
		}
	}
	return newFileSink(r.writer(filepath.Join(dir, LogFileName)), DefaultFormatter), nil
}

// writer returns the shared daily writer for path. Callers hold r.mu.
func (r *Router) writer(path string) *dailyWriter {
	w, ok := r.writers[path]
	if !ok {
		w = newDailyWriter(path, r.now)
		r.writers[path] = w
	}
	return w
}

// validateChannel keeps a channel name inside its own directory.
func validateChannel(channel string) error {
	switch {
	case strings.TrimSpace(channel) == "", channel == ".", channel == "..":
		return errors.Wrapf(ErrInvalidChannel, "%q", channel)
	case strings.ContainsAny(channel, `/\`+"\x00"), strings.ContainsRune(channel, os.PathSeparator):
		return errors.Wrapf(ErrInvalidChannel, "%q", channel)
	}
	return nil
}

// Logger appends activity for one channel to its sink.
// Records are always logged at info level and never reach the diagnostic
// loggers.
type Logger struct {
	name    string
	channel string
	now     func() time.Time

	mu   sync.RWMutex
	sink Sink
}

func (l *Logger) Name() string    { return l.name }
func (l *Logger) Channel() string { return l.channel }

func (l *Logger) Level() logx.Level { return logx.LevelInfo }

// Sink returns the currently attached sink.
func (l *Logger) Sink() Sink {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sink
}

// Log records a message from nick at the current time.
func (l *Logger) Log(ctx context.Context, nick, message string) error {
	return l.Emit(ctx, Record{Created: l.now(), Nick: nick, Message: message})
}

// Emit sends r to the sink. The channel is always the logger's own.
func (l *Logger) Emit(ctx context.Context, r Record) error {
	r.Channel = l.channel
	if r.Created.IsZero() {
		r.Created = l.now()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.sink == nil {
		return nil
	}
	return l.sink.Emit(ctx, r)
}

func (l *Logger) swap(s Sink) error {
	l.mu.Lock()
	old := l.sink
	l.sink = s
	l.mu.Unlock()

	if old != nil {
		return old.Close()
	}
	return nil
}
