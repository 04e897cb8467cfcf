// Package logger provides a context-aware structured logger backed by zap.
package logger

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the minimum severity a Logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) zapLevel() zapcore.Level {
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

// TraceIDFn extracts a trace id from the context.
type TraceIDFn func(ctx context.Context) string

// LoggerInterface is what the rest of the code base depends on.
type LoggerInterface interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	Debugc(ctx context.Context, caller int, msg string, args ...any)
	Infoc(ctx context.Context, caller int, msg string, args ...any)
	Warnc(ctx context.Context, caller int, msg string, args ...any)
	Errorc(ctx context.Context, caller int, msg string, args ...any)
}

var _ LoggerInterface = (*Logger)(nil)

// Logger writes JSON lines through a zap core.
type Logger struct {
	zl        *zap.Logger
	traceIDFn TraceIDFn
}

// New builds a Logger writing to w. A nil traceIDFn falls back to the otel span context.
func New(w io.Writer, minLevel Level, serviceName string, traceIDFn TraceIDFn) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.MessageKey = "msg"
	encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(w),
		zap.NewAtomicLevelAt(minLevel.zapLevel()),
	)

	if traceIDFn == nil {
		traceIDFn = spanTraceID
	}

	return &Logger{
		zl:        zap.New(core).With(zap.String("service", serviceName)),
		traceIDFn: traceIDFn,
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zl: zap.NewNop(), traceIDFn: spanTraceID}
}

func spanTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.write(ctx, zapcore.DebugLevel, 2, msg, args...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.write(ctx, zapcore.InfoLevel, 2, msg, args...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.write(ctx, zapcore.WarnLevel, 2, msg, args...)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.write(ctx, zapcore.ErrorLevel, 2, msg, args...)
}

func (l *Logger) Debugc(ctx context.Context, caller int, msg string, args ...any) {
	l.write(ctx, zapcore.DebugLevel, caller, msg, args...)
}

func (l *Logger) Infoc(ctx context.Context, caller int, msg string, args ...any) {
	l.write(ctx, zapcore.InfoLevel, caller, msg, args...)
}

func (l *Logger) Warnc(ctx context.Context, caller int, msg string, args ...any) {
	l.write(ctx, zapcore.WarnLevel, caller, msg, args...)
}

func (l *Logger) Errorc(ctx context.Context, caller int, msg string, args ...any) {
	l.write(ctx, zapcore.ErrorLevel, caller, msg, args...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

func (l *Logger) write(ctx context.Context, level zapcore.Level, caller int, msg string, args ...any) {
	ce := l.zl.Check(level, msg)
	if ce == nil {
		return
	}

	fields := make([]zap.Field, 0, len(args)/2+2)
	if _, file, line, ok := runtime.Caller(caller); ok {
		fields = append(fields, zap.String("file", fmt.Sprintf("%s:%d", trimPath(file), line)))
	}
	if ctx != nil {
		if id := l.traceIDFn(ctx); id != "" {
			fields = append(fields, zap.String("trace_id", id))
		}
	}
	fields = append(fields, toFields(args)...)

	ce.Write(fields...)
}

// toFields turns alternating key/value pairs into zap fields.
func toFields(args []any) []zap.Field {
	fields := make([]zap.Field, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("arg%d", i)
		}
		if i+1 >= len(args) {
			fields = append(fields, zap.String(key, "!MISSING"))
			break
		}
		if err, ok := args[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, args[i+1]))
	}
	return fields
}

func trimPath(file string) string {
	short := file
	slashes := 0
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			slashes++
			if slashes == 2 {
				short = file[i+1:]
				break
			}
		}
	}
	return short
}
