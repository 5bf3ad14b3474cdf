package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"botlog/internal/chanlog"
	"botlog/internal/config"
	"botlog/internal/eventbus"
	"botlog/internal/storage"
	logx "botlog/pkg/logx"
)

func noNotify(string) (bool, error) { return false, nil }

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.TrimSpace(body)+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func newTestApp(t *testing.T, body string) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, strings.ReplaceAll(body, "$DIR", dir))

	a, err := New(context.Background(), path, WithNotifier(noNotify))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, dir
}

func stopApp(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopUnknown); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAppRecordsToDatabase(t *testing.T) {
	a, _ := newTestApp(t, `
logging:
  level: ERROR
  file: $DIR/botlog.log
channel_logging:
  db: true
storage:
  driver: sqlite
  path: $DIR/botlog.db
`)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stopApp(t, a)

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a.Bus().Publish(eventbus.Event{
		Type: chanlog.EventChatMessage,
		Data: chanlog.Event{Channel: "#go", Nick: "alice", Message: "hello", At: at},
	})

	var docs []storage.ChannelLog
	waitFor(t, "db record", func() bool {
		var err error
		docs, err = a.Store().Recent(context.Background(), storage.Query{Channel: "#go"})
		return err == nil && len(docs) == 1
	})
	if docs[0].Nick != "alice" || docs[0].Message != "hello" {
		t.Fatalf("unexpected doc: %+v", docs[0])
	}
	if got := storage.FromEpochSeconds(docs[0].Created); !got.Equal(at) {
		t.Fatalf("expected created %v, got %v", at, got)
	}
}

func TestAppFeedPersistsEveryEventThroughStop(t *testing.T) {
	a, dir := newTestApp(t, `
logging:
  level: ERROR
  file: $DIR/botlog.log
channel_logging:
  db: true
storage:
  driver: sqlite
  path: $DIR/botlog.db
`)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// More lines than the recorder's buffer, so the reader outruns the writer.
	const channels = 4
	total := 2 * chanlog.SubscribeBuffer
	var in strings.Builder
	for i := 0; i < total; i++ {
		fmt.Fprintf(&in, `{"channel":"#c%d","nick":"n%d","message":"m%d"}`+"\n", i%channels, i, i)
	}
	n, err := a.Feed(context.Background(), strings.NewReader(in.String()))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if n != total {
		t.Fatalf("expected %d events published, got %d", total, n)
	}

	// Stop right after EOF: buffered events must still reach the database.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopInputEOF); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if d := a.Bus().(eventbus.Stats).Dropped(); d != 0 {
		t.Fatalf("expected no dropped bus events, got %d", d)
	}

	st, err := storage.Open(context.Background(), storage.Config{Driver: "sqlite", Path: filepath.Join(dir, "botlog.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer st.Close()

	persisted := 0
	for c := 0; c < channels; c++ {
		docs, err := st.Recent(context.Background(), storage.Query{Channel: fmt.Sprintf("#c%d", c), Limit: storage.MaxQueryLimit})
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		persisted += len(docs)
	}
	if persisted != total {
		t.Fatalf("fed %d events, %d persisted", total, persisted)
	}
}

func TestAppRecordsToFile(t *testing.T) {
	a, dir := newTestApp(t, `
logging:
  level: ERROR
  file: $DIR/botlog.log
channel_logging:
  dir: $DIR/channels
`)
	if a.Store() != nil {
		t.Fatalf("expected no store without storage section")
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stopApp(t, a)

	in := `{"channel":"general","nick":"bob","message":"hi there","at":"2024-05-01T10:00:00Z"}
not json
{"nick":"nobody","message":"no channel"}
`
	n, err := a.Feed(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 event published, got %d", n)
	}

	path := filepath.Join(dir, "channels", "general", chanlog.LogFileName)
	want := "2024-05-01 10:00:00,000 - bob - hi there\n"
	waitFor(t, "channel file", func() bool {
		b, err := os.ReadFile(path)
		return err == nil && string(b) == want
	})
}

func TestAppReloadSwitchesSink(t *testing.T) {
	a, dir := newTestApp(t, `
logging:
  level: ERROR
  file: $DIR/botlog.log
channel_logging:
  dir: $DIR/channels
storage:
  driver: sqlite
  path: $DIR/botlog.db
`)
	l, err := a.Router().Logger("ops")
	if err != nil {
		t.Fatalf("Logger: %v", err)
	}
	if _, ok := l.Sink().(*chanlog.FileSink); !ok {
		t.Fatalf("expected file sink, got %T", l.Sink())
	}

	writeConfig(t, a.Config().Path(), strings.ReplaceAll(`
logging:
  level: ERROR
  file: $DIR/botlog.log
channel_logging:
  dir: $DIR/channels
  db: true
storage:
  driver: sqlite
  path: $DIR/botlog.db
`, "$DIR", dir))

	changed, err := a.Config().Reload()
	if err != nil || !changed {
		t.Fatalf("Reload: changed=%v err=%v", changed, err)
	}
	a.apply(a.Config().Get())

	if _, ok := l.Sink().(*chanlog.DBSink); !ok {
		t.Fatalf("expected db sink after reload, got %T", l.Sink())
	}
	again, err := a.Router().Logger("ops")
	if err != nil || again != l {
		t.Fatalf("expected the same logger after reload")
	}
	stopApp(t, a)
}

func TestAppDBWithoutStorageDrops(t *testing.T) {
	a, _ := newTestApp(t, `
logging:
  level: ERROR
  file: $DIR/botlog.log
channel_logging:
  db: true
`)
	defer stopApp(t, a)

	l, err := a.Router().Logger("quiet")
	if err != nil {
		t.Fatalf("Logger: %v", err)
	}
	if err := l.Log(context.Background(), "carol", "dropped"); err != nil {
		t.Fatalf("expected silent drop, got %v", err)
	}
	a.Recorder().Record(context.Background(), chanlog.Event{Channel: "quiet", Nick: "carol", Message: "x"})
	if f := a.Recorder().Failures(); f != 0 {
		t.Fatalf("expected no failures, got %d", f)
	}
}

func TestNewRejectsUnwritableLogFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "logging:\n  file: "+filepath.Join(blocker, "botlog.log"))

	if _, err := New(context.Background(), path, WithNotifier(noNotify)); err == nil {
		t.Fatalf("expected error for log file under a regular file")
	}
}

func TestMapStorageConfig(t *testing.T) {
	cases := []struct {
		name    string
		st      *config.StorageConfig
		ok      bool
		driver  string
		busy    time.Duration
		wantErr bool
	}{
		{name: "nil", st: nil},
		{name: "none", st: &config.StorageConfig{Driver: "none"}},
		{name: "sqlite default busy", st: &config.StorageConfig{Driver: "SQLite", Path: "a.db"}, ok: true, driver: "sqlite", busy: time.Second},
		{name: "sqlite busy", st: &config.StorageConfig{Driver: "sqlite", Path: "a.db", BusyTimeout: config.Duration(250 * time.Millisecond)}, ok: true, driver: "sqlite", busy: 250 * time.Millisecond},
		{name: "postgres", st: &config.StorageConfig{Driver: "postgres", DSN: "postgres://x"}, ok: true, driver: "postgres"},
		{name: "unknown", st: &config.StorageConfig{Driver: "mongo"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc, ok, err := MapStorageConfig(&config.Config{Storage: tc.st})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tc.wantErr)
			}
			if ok != tc.ok || sc.Driver != tc.driver || sc.BusyTimeout != tc.busy {
				t.Fatalf("got ok=%v %+v", ok, sc)
			}
		})
	}
}

func TestMapLogConfig(t *testing.T) {
	got := mapLogConfig(&config.Config{Logging: config.LoggingConfig{Level: "DEBUG", File: "  x.log "}})
	want := logx.Config{Level: "DEBUG", File: "x.log"}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}
