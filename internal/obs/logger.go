// Package obs adapts the teacher's logging and tracing idiom (mlog's
// leveled Logger interface over an otelzap-backed implementation, and
// mopentelemetry's span-error helper) for the ledger engine, trimmed to
// trace-only telemetry (see DESIGN.md for why metrics/log export are
// dropped).
package obs

import (
	"context"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Logger is the leveled logging interface every stage, the Saga, the
// Projector and the Watcher log through. Mirrors the teacher's mlog.Logger
// shape but drops the *ln/*f proliferation in favour of a single
// structured-fields style, since every call site in this codebase already
// knows its fields up front.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Fatal(msg string, fields ...any)
	WithFields(fields ...any) Logger
	Sync() error
}

// ZapLogger wraps otelzap.SugaredLogger. Its methods take no context, so
// log lines are not correlated with an active span's trace id.
type ZapLogger struct {
	sugar *otelzap.SugaredLogger
}

// NewZapLogger builds a production zap logger (JSON encoding, epoch-seconds
// timestamps) wrapped in otelzap.
func NewZapLogger(level string) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()

	lvl, err := zap.ParseAtomicLevel(level)
	if err == nil {
		cfg.Level = lvl
	}

	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &ZapLogger{sugar: otelzap.New(base).Sugar()}, nil
}

func (l *ZapLogger) Debug(msg string, fields ...any) { l.sugar.Debugw(msg, fields...) }
func (l *ZapLogger) Info(msg string, fields ...any)  { l.sugar.Infow(msg, fields...) }
func (l *ZapLogger) Warn(msg string, fields ...any)  { l.sugar.Warnw(msg, fields...) }
func (l *ZapLogger) Error(msg string, fields ...any) { l.sugar.Errorw(msg, fields...) }
func (l *ZapLogger) Fatal(msg string, fields ...any) { l.sugar.Fatalw(msg, fields...) }

func (l *ZapLogger) WithFields(fields ...any) Logger {
	return &ZapLogger{sugar: l.sugar.With(fields...)}
}

func (l *ZapLogger) Sync() error { return l.sugar.Sync() }

// ctxKey is an unexported context key type, following the teacher's
// context.go convention of a named string key rather than a bare struct{}.
type ctxKey string

const loggerKey ctxKey = "obs_logger"

// ContextWithLogger attaches logger to ctx.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the Logger from ctx, or a no-op logger if absent.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}

	return noop{}
}

type noop struct{}

func (noop) Debug(string, ...any)     {}
func (noop) Info(string, ...any)      {}
func (noop) Warn(string, ...any)      {}
func (noop) Error(string, ...any)     {}
func (noop) Fatal(string, ...any)     {}
func (noop) WithFields(...any) Logger { return noop{} }
func (noop) Sync() error              { return nil }
