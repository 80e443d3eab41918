package observe

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Logger is the structured logger used across fetchguard.
//
// Contract:
//   - Concurrency: implementations are safe for concurrent use.
//   - Context: a span in ctx is attached to the entry as trace_id/span_id.
//   - Errors: logging is best-effort and never panics.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// With returns a logger that adds fields to every entry.
	With(fields ...Field) Logger
}

// Field is one key/value pair of a log entry.
type Field struct {
	Key   string
	Value any
}

// F builds a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// LogLevel orders entries by severity.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

// ParseLogLevel maps a level name to a LogLevel. Unknown names are info.
func ParseLogLevel(s string) LogLevel {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return LogLevel(i)
		}
	}
	return LevelInfo
}

func (l LogLevel) String() string {
	if l < LevelDebug || l > LevelError {
		return levelNames[LevelInfo]
	}
	return levelNames[l]
}

const redacted = "[REDACTED]"

// Keys whose values never reach a log sink. Cached payloads are included.
var sensitiveKeys = map[string]struct{}{
	"password":    {},
	"secret":      {},
	"token":       {},
	"api_key":     {},
	"credential":  {},
	"value":       {},
	"cache.value": {},
}

func isRedactedField(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

// printable renders a field value for the JSON backend.
func printable(f Field) any {
	if isRedactedField(f.Key) {
		return redacted
	}
	if err, ok := f.Value.(error); ok && err != nil {
		return err.Error()
	}
	return f.Value
}

// traceFields returns trace_id and span_id for the span in ctx, if any.
func traceFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []Field{F("trace_id", sc.TraceID().String()), F("span_id", sc.SpanID().String())}
}

// jsonLogger writes one JSON object per line.
type jsonLogger struct {
	min    LogLevel
	sink   *syncWriter
	fields []Field
}

// syncWriter serializes writes from a logger and all of its children.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) writeLine(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(append(b, '\n'))
}

// NewLogger returns a JSON logger writing to stderr.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter returns a JSON logger writing to w.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	return &jsonLogger{min: ParseLogLevel(level), sink: &syncWriter{w: w}}
}

func (l *jsonLogger) With(fields ...Field) Logger {
	return &jsonLogger{
		min:    l.min,
		sink:   l.sink,
		fields: append(append([]Field(nil), l.fields...), fields...),
	}
}

func (l *jsonLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, LevelDebug, msg, fields)
}

func (l *jsonLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, LevelInfo, msg, fields)
}

func (l *jsonLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, LevelWarn, msg, fields)
}

func (l *jsonLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, LevelError, msg, fields)
}

func (l *jsonLogger) write(ctx context.Context, level LogLevel, msg string, fields []Field) {
	if level < l.min {
		return
	}
	entry := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level.String(),
		"msg":       msg,
	}
	// Later fields win: base fields, then trace ids, then call-site fields.
	for _, group := range [][]Field{l.fields, traceFields(ctx), fields} {
		for _, f := range group {
			entry[f.Key] = printable(f)
		}
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.sink.writeLine(b)
}

type nopLogger struct{}

// NopLogger returns a Logger that discards every entry.
func NopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(context.Context, string, ...Field) {}
func (nopLogger) Info(context.Context, string, ...Field)  {}
func (nopLogger) Warn(context.Context, string, ...Field)  {}
func (nopLogger) Error(context.Context, string, ...Field) {}
func (l nopLogger) With(...Field) Logger                  { return l }

var _ Logger = (*jsonLogger)(nil)
