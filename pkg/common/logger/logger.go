package logger

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var Log = logrus.New()

type ctxKey struct{}

// Init configures the process logger. level falls back to LOG_LEVEL, then info.
func Init(level ...string) {
	lvl := os.Getenv("LOG_LEVEL")
	if len(level) > 0 && level[0] != "" {
		lvl = level[0]
	}
	Log = New(lvl, os.Stdout)
}

// New builds a JSON logger writing to out.
func New(level string, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	if level == "" {
		level = "info"
	}
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	l.SetLevel(logLevel)
	return l
}

func WithField(key string, value interface{}) *logrus.Entry {
	return Log.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}

// IntoContext stores a request-scoped entry so downstream code logs with the
// same request_id.
func IntoContext(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, entry)
}

// FromContext returns the request-scoped entry, or a bare entry on Log.
func FromContext(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok && entry != nil {
			return entry
		}
	}
	return logrus.NewEntry(Log)
}
