package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger interface defines the logging contract
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	With(fields ...interface{}) Logger
}

// logrusLogger wraps a logrus.Entry to implement our Logger interface
type logrusLogger struct {
	entry *logrus.Entry
}

// New creates a new structured logger
func New(level string, serviceName string) Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)

	switch level {
	case "debug":
		base.SetLevel(logrus.DebugLevel)
	case "info":
		base.SetLevel(logrus.InfoLevel)
	case "warn":
		base.SetLevel(logrus.WarnLevel)
	case "error":
		base.SetLevel(logrus.ErrorLevel)
	default:
		base.SetLevel(logrus.InfoLevel)
	}

	// JSON formatter in production, text formatter in development.
	if os.Getenv("ENVIRONMENT") == "development" {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	entry := base.WithField("service", serviceName)

	return &logrusLogger{entry: entry}
}

// fieldsOf converts a positional key-value varargs list into logrus.Fields.
func fieldsOf(kv []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return fields
}

func (l *logrusLogger) Debug(msg string, fields ...interface{}) {
	l.entry.WithFields(fieldsOf(fields)).Debug(msg)
}

func (l *logrusLogger) Info(msg string, fields ...interface{}) {
	l.entry.WithFields(fieldsOf(fields)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, fields ...interface{}) {
	l.entry.WithFields(fieldsOf(fields)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, fields ...interface{}) {
	l.entry.WithFields(fieldsOf(fields)).Error(msg)
}

func (l *logrusLogger) Fatal(msg string, fields ...interface{}) {
	l.entry.WithFields(fieldsOf(fields)).Fatal(msg)
}

// With adds structured context to the logger
func (l *logrusLogger) With(fields ...interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithFields(fieldsOf(fields))}
}

// NewNoop creates a no-op logger for testing
func NewNoop() Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetLevel(logrus.PanicLevel)
	return &logrusLogger{entry: logrus.NewEntry(base)}
}
