package observe

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a *zap.Logger to Logger.
type ZapLogger struct {
	l *zap.Logger
}

// NewZapLogger wraps an existing zap logger. A nil logger yields zap.NewNop.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{l: l}
}

// NewProductionZapLogger builds a JSON zap logger at the given level.
func NewProductionZapLogger(level string) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(ParseLogLevel(level)))
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(l), nil
}

func (z *ZapLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	z.l.Debug(msg, zapFields(append(traceFields(ctx), fields...))...)
}

func (z *ZapLogger) Info(ctx context.Context, msg string, fields ...Field) {
	z.l.Info(msg, zapFields(append(traceFields(ctx), fields...))...)
}

func (z *ZapLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	z.l.Warn(msg, zapFields(append(traceFields(ctx), fields...))...)
}

func (z *ZapLogger) Error(ctx context.Context, msg string, fields ...Field) {
	z.l.Error(msg, zapFields(append(traceFields(ctx), fields...))...)
}

// With returns a child logger with fields attached.
func (z *ZapLogger) With(fields ...Field) Logger {
	return &ZapLogger{l: z.l.With(zapFields(fields)...)}
}

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error {
	return z.l.Sync()
}

// Unwrap exposes the underlying zap logger.
func (z *ZapLogger) Unwrap() *zap.Logger {
	return z.l
}

func zapFields(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if isRedactedField(f.Key) {
			out = append(out, zap.String(f.Key, redacted))
			continue
		}
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

func zapLevel(l LogLevel) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

var _ Logger = (*ZapLogger)(nil)
