package logx

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Size-rotating file policy for diagnostic log files.
const (
	FileMaxSizeMB  = 50
	FileMaxBackups = 6
)

// Config is the diagnostic logging section of the settings.
type Config struct {
	Level  string
	File   string // empty: console
	Format string // empty: DefaultFormat
}

type SinkKind string

const (
	SinkConsole SinkKind = "console"
	SinkFile    SinkKind = "file"
)

// SinkInfo describes the single sink attached to a named logger.
type SinkInfo struct {
	Kind       SinkKind
	Path       string
	MaxSizeMB  int
	MaxBackups int
	Format     string
	Level      Level
}

// Factory builds named diagnostic loggers.
//
// Every logger has exactly one sink and one formatter. Building the same name
// twice returns the memoized logger and replaces its sink.
type Factory struct {
	mu      sync.Mutex
	cfg     Config
	console io.Writer
	reg     *Registry

	// files holds one rotating writer per path; loggers sharing a path share
	// the writer so only one of them rotates it.
	files map[string]*fileRef
}

type FactoryOption func(*Factory)

// WithConsole overrides the console sink writer (default: stdout).
func WithConsole(w io.Writer) FactoryOption {
	return func(f *Factory) { f.console = w }
}

func NewFactory(cfg Config, opts ...FactoryOption) *Factory {
	setGlobals()
	f := &Factory{cfg: cfg, console: Stdout(), reg: NewRegistry(), files: map[string]*fileRef{}}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *Factory) Registry() *Registry { return f.reg }

// Build returns the logger registered under name, configuring its sink from
// the factory's current settings.
func (f *Factory) Build(name string) (Logger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	h := f.reg.getOrCreate(name)
	if err := f.configure(h, f.cfg); err != nil {
		return Logger{}, err
	}
	return Logger{h: h}, nil
}

// Apply reconfigures every registered logger.
// Loggers whose new sink cannot be opened keep their previous sink.
func (f *Factory) Apply(cfg Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cfg = cfg
	var errs error
	for _, h := range f.reg.all() {
		if err := f.configure(h, cfg); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

// Close releases every file sink. Loggers stay usable but write nothing.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs error
	for _, h := range f.reg.all() {
		if err := h.swap(zerolog.Nop(), sink{}); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

func (f *Factory) configure(h *handle, cfg Config) error {
	lvl := ParseLevel(cfg.Level, LevelInfo)
	format := cfg.Format
	if strings.TrimSpace(format) == "" {
		format = DefaultFormat
	}

	var (
		out io.Writer
		s   sink
	)
	if path := strings.TrimSpace(cfg.File); path == "" {
		out = f.console
		s.info = SinkInfo{Kind: SinkConsole}
	} else {
		ref, err := f.openFile(path)
		if err != nil {
			return err
		}
		out = ref.lj
		s.closer = ref
		s.info = SinkInfo{Kind: SinkFile, Path: path, MaxSizeMB: FileMaxSizeMB, MaxBackups: FileMaxBackups}
	}
	s.info.Format = format
	s.info.Level = lvl

	zl := zerolog.New(newPatternWriter(out, format)).
		Level(lvl).
		With().Timestamp().Str(NameFieldName, h.name).
		Logger()
	return h.swap(zl, s)
}

// openFile returns the shared writer for path, taking a reference.
// Callers hold f.mu.
func (f *Factory) openFile(path string) (*fileRef, error) {
	if ref, ok := f.files[path]; ok {
		ref.refs++
		return ref, nil
	}
	if err := checkWritable(path); err != nil {
		return nil, errors.Wrapf(err, "logx: open log file %q", path)
	}
	ref := &fileRef{
		f:    f,
		path: path,
		refs: 1,
		lj: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    FileMaxSizeMB,
			MaxBackups: FileMaxBackups,
		},
	}
	f.files[path] = ref
	return ref, nil
}

// fileRef is a reference-counted lumberjack writer. It is only closed when
// the last logger using it lets go. refs is guarded by the factory mutex.
type fileRef struct {
	f    *Factory
	path string
	lj   *lumberjack.Logger
	refs int
}

func (r *fileRef) Close() error {
	r.refs--
	if r.refs > 0 {
		return nil
	}
	delete(r.f.files, r.path)
	return r.lj.Close()
}

// checkWritable opens the file once so an unwritable path fails at startup
// instead of on the first write.
func checkWritable(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// ---- Registry ----

// Registry maps logger names to their handles.
// Lookups are idempotent: a name is created once and then reused.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*handle
}

func NewRegistry() *Registry {
	return &Registry{handles: map[string]*handle{}}
}

// Get returns the logger registered under name, if any.
func (r *Registry) Get(name string) (Logger, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[name]
	if !ok {
		return Logger{}, false
	}
	return Logger{h: h}, true
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.handles))
	for n := range r.handles {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) getOrCreate(name string) *handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[name]
	if !ok {
		h = &handle{name: name}
		h.root.Store(zerolog.Nop())
		r.handles[name] = h
	}
	return h
}

func (r *Registry) all() []*handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	return out
}

// ---- handle ----

type sink struct {
	info   SinkInfo
	closer io.Closer
}

type handle struct {
	name string
	root atomic.Value // stores zerolog.Logger

	mu   sync.Mutex
	sink sink
}

func (h *handle) current() zerolog.Logger {
	zl, ok := h.root.Load().(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (h *handle) sinkInfo() SinkInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sink.info
}

// swap replaces the logger and its sink, closing the previous sink.
func (h *handle) swap(zl zerolog.Logger, s sink) error {
	h.mu.Lock()
	old := h.sink
	h.sink = s
	h.root.Store(zl)
	h.mu.Unlock()

	if old.closer != nil {
		return old.closer.Close()
	}
	return nil
}
