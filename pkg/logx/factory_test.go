package logx

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildConsoleSinkUsesDefaultFormat(t *testing.T) {
	var buf bytes.Buffer
	f := NewFactory(Config{Level: "INFO"}, WithConsole(&buf))

	l, err := f.Build("foo")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	si := l.Sink()
	if si.Kind != SinkConsole {
		t.Fatalf("expected console sink, got %q", si.Kind)
	}
	if si.Format != DefaultFormat {
		t.Fatalf("expected default format, got %q", si.Format)
	}
	if si.Level != LevelInfo {
		t.Fatalf("expected info level, got %v", si.Level)
	}

	l.Info("hello")
	out := buf.String()
	if !strings.Contains(out, " [INFO] [foo:") || !strings.HasSuffix(out, "]: hello\n") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestBuildFileSinkRotationPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	f := NewFactory(Config{Level: "DEBUG", File: path})
	defer f.Close()

	l, err := f.Build("foo")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	si := l.Sink()
	if si.Kind != SinkFile || si.Path != path {
		t.Fatalf("unexpected sink %+v", si)
	}
	if si.MaxSizeMB != 50 || si.MaxBackups != 6 {
		t.Fatalf("expected 50MiB/6 backups, got %d/%d", si.MaxSizeMB, si.MaxBackups)
	}

	l.Debug("written to file", String("k", "v"))
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "]: written to file k=v") {
		t.Fatalf("unexpected file content %q", b)
	}
}

func TestBuildUsesCustomFormat(t *testing.T) {
	var buf bytes.Buffer
	f := NewFactory(Config{Level: "INFO", Format: "blah blah blah"}, WithConsole(&buf))

	l, err := f.Build("foo")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := l.Sink().Format; got != "blah blah blah" {
		t.Fatalf("expected custom format, got %q", got)
	}
	l.Info("ignored by pattern")
	if buf.String() != "blah blah blah\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestBuildTwiceKeepsSingleSink(t *testing.T) {
	var buf bytes.Buffer
	f := NewFactory(Config{Level: "INFO", Format: "{name} {message}"}, WithConsole(&buf))

	l1, err := f.Build("foo")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	l2, err := f.Build("foo")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if l1.h != l2.h {
		t.Fatalf("expected memoized logger")
	}
	if names := f.Registry().Names(); len(names) != 1 || names[0] != "foo" {
		t.Fatalf("unexpected registry %v", names)
	}

	l1.Info("once")
	if buf.String() != "foo once\n" {
		t.Fatalf("expected exactly one line, got %q", buf.String())
	}
}

func TestBuildUnwritablePathFails(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := NewFactory(Config{File: filepath.Join(blocker, "bot.log")})
	if _, err := f.Build("foo"); err == nil {
		t.Fatalf("expected error for unwritable path")
	}
}

func TestLevelFiltersBelowMinimum(t *testing.T) {
	var buf bytes.Buffer
	f := NewFactory(Config{Level: "warning"}, WithConsole(&buf))
	l, _ := f.Build("foo")

	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing written, got %q", buf.String())
	}
	l.Warn("kept")
	if !strings.Contains(buf.String(), "[WARN]") {
		t.Fatalf("expected warn line, got %q", buf.String())
	}
}

func TestApplyReplacesSink(t *testing.T) {
	var buf bytes.Buffer
	f := NewFactory(Config{Level: "INFO"}, WithConsole(&buf))
	l, _ := f.Build("foo")

	path := filepath.Join(t.TempDir(), "bot.log")
	if err := f.Apply(Config{Level: "INFO", File: path, Format: "{message}"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	defer f.Close()

	l.Info("after apply")
	if buf.Len() != 0 {
		t.Fatalf("console sink should be detached, got %q", buf.String())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "after apply\n" {
		t.Fatalf("unexpected file content %q", b)
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("expected zero logger")
	}
	l.Info("nothing")
	l.With(String("a", "b")).Error("still nothing")
}

func TestLoggersShareOneFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	f := NewFactory(Config{Level: "INFO", File: path, Format: "{name} {message}"})

	a, err := f.Build("a")
	if err != nil {
		t.Fatalf("Build a: %v", err)
	}
	b, err := f.Build("b")
	if err != nil {
		t.Fatalf("Build b: %v", err)
	}
	if _, err := f.Build("a"); err != nil {
		t.Fatalf("rebuild a: %v", err)
	}
	if len(f.files) != 1 || f.files[path].refs != 2 {
		t.Fatalf("expected one shared writer with 2 refs, got %d files", len(f.files))
	}

	a.Info("one")
	b.Info("two")
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(f.files) != 0 {
		t.Fatalf("expected writers released after Close")
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "a one\nb two\n" {
		t.Fatalf("unexpected file content %q", got)
	}
}

func TestParseLevelNames(t *testing.T) {
	cases := map[string]Level{
		"trace":    LevelTrace,
		" DEBUG ":  LevelDebug,
		"warning":  LevelWarn,
		"ERROR":    LevelError,
		"CRITICAL": LevelCritical,
		"fatal":    LevelCritical,
		"loud":     LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in, LevelInfo); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCriticalLevelFiltersErrors(t *testing.T) {
	var buf bytes.Buffer
	f := NewFactory(Config{Level: "CRITICAL"}, WithConsole(&buf))
	l, err := f.Build("foo")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if l.Sink().Level != LevelCritical {
		t.Fatalf("expected critical level, got %v", l.Sink().Level)
	}
	l.Error("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing written, got %q", buf.String())
	}
}
