// Package obslog is the structured-logging seam of this module; eventloop
// accepts a Logger through WithLogger, and no other package logs. It
// defines a small Logger interface so callers depend on neither a concrete
// logging library nor each other, and provides the real implementation backed by
// github.com/joeycumines/logiface bound to log/slog via
// github.com/joeycumines/logiface-slog.
package obslog

import (
	"log/slog"

	"github.com/joeycumines/logiface"
	slogbinding "github.com/joeycumines/logiface-slog"
)

// Logger is the structured logging seam eventloop.WithLogger accepts. Implementations must tolerate a nil receiver-free
// call pattern; use NewNoOp for a safe default.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, err error, kv ...any)
}

type noopLogger struct{}

// NewNoOp returns a Logger that discards everything, the default used when
// no logger is configured.
func NewNoOp() Logger { return noopLogger{} }

func (noopLogger) Debug(string, ...any)        {}
func (noopLogger) Info(string, ...any)         {}
func (noopLogger) Warn(string, ...any)         {}
func (noopLogger) Error(string, error, ...any) {}

// logifaceLogger adapts a *logiface.Logger[*slogbinding.Event] to Logger.
type logifaceLogger struct {
	l *logiface.Logger[*slogbinding.Event]
}

// NewSlog builds a Logger that writes structured events through logiface to
// the given slog.Handler. Pass slog.NewJSONHandler(os.Stderr, nil) (or any
// other handler) to get JSON/text output; pass a discard handler to keep
// the logiface call sites but suppress output entirely.
func NewSlog(handler slog.Handler) Logger {
	return &logifaceLogger{
		l: logiface.New[*slogbinding.Event](slogbinding.NewLogger(handler)),
	}
}

func (a *logifaceLogger) Debug(msg string, kv ...any) {
	a.log(a.l.Debug(), msg, kv)
}

func (a *logifaceLogger) Info(msg string, kv ...any) {
	a.log(a.l.Info(), msg, kv)
}

func (a *logifaceLogger) Warn(msg string, kv ...any) {
	a.log(a.l.Warning(), msg, kv)
}

func (a *logifaceLogger) Error(msg string, err error, kv ...any) {
	b := a.l.Err()
	if err != nil {
		b = b.Err(err)
	}
	a.log(b, msg, kv)
}

func (a *logifaceLogger) log(b *logiface.Builder[*slogbinding.Event], msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		if key == "" {
			continue
		}
		b = b.Interface(key, kv[i+1])
	}
	b.Log(msg)
}
