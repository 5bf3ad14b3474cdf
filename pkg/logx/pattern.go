package logx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultFormat is used when no custom format is configured.
//
// Placeholders:
//
//	{time} {level} {name} {file} {line} {caller} {message} {fields}
//
// If a pattern does not contain {fields}, the remaining structured fields are
// appended as " key=value" pairs.
const DefaultFormat = "{time} [{level}] [{name}:{line}]: {message}"

// patternWriter is the formatter attached to every diagnostic sink.
// It receives zerolog JSON lines and renders them with a pattern.
type patternWriter struct {
	out     io.Writer
	pattern string

	mu sync.Mutex
}

func newPatternWriter(out io.Writer, pattern string) *patternWriter {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultFormat
	}
	return &patternWriter{out: out, pattern: pattern}
}

func (w *patternWriter) Write(p []byte) (int, error) {
	line := renderPattern(w.pattern, p)

	w.mu.Lock()
	_, err := io.WriteString(w.out, line)
	w.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// renderPattern decodes one zerolog event and renders it.
// Lines that are not JSON are passed through untouched.
func renderPattern(pattern string, p []byte) string {
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return string(p)
	}

	caller := str(m[zerolog.CallerFieldName])
	file, line := caller, ""
	if i := strings.LastIndexByte(caller, ':'); i >= 0 {
		file, line = caller[:i], caller[i+1:]
	}

	known := map[string]string{
		"time":    str(m[zerolog.TimestampFieldName]),
		"level":   strings.ToUpper(str(m[zerolog.LevelFieldName])),
		"name":    str(m[NameFieldName]),
		"file":    file,
		"line":    line,
		"caller":  caller,
		"message": str(m[zerolog.MessageFieldName]),
	}
	for _, k := range []string{
		zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.CallerFieldName,
		zerolog.MessageFieldName, NameFieldName,
	} {
		delete(m, k)
	}
	fields := renderFields(m)

	var b strings.Builder
	usedFields := false
	rest := pattern
	for {
		i := strings.IndexByte(rest, '{')
		if i < 0 {
			b.WriteString(rest)
			break
		}
		j := strings.IndexByte(rest[i:], '}')
		if j < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:i])
		key := rest[i+1 : i+j]
		switch v, ok := known[key]; {
		case ok:
			b.WriteString(v)
		case key == "fields":
			b.WriteString(strings.TrimPrefix(fields, " "))
			usedFields = true
		default:
			b.WriteString(rest[i : i+j+1])
		}
		rest = rest[i+j+1:]
	}
	if !usedFields {
		b.WriteString(fields)
	}
	b.WriteByte('\n')
	return b.String()
}

func renderFields(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(valString(m[k]))
	}
	return b.String()
}

func valString(v any) string {
	switch x := v.(type) {
	case string:
		if x == "" || strings.ContainsAny(x, " =\"\t\n") {
			return fmt.Sprintf("%q", x)
		}
		return x
	case json.Number:
		return x.String()
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
