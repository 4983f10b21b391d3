package mqttsn

import (
	"github.com/sirupsen/logrus"
)

// LogrusLogger adapts a logrus logger to the Logger interface so
// deployments already standardized on logrus get structured MQTT-SN
// logging without a bridge of their own.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps a logrus logger. A nil logger uses the logrus
// standard logger.
func NewLogrusLogger(logger *logrus.Logger) *LogrusLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusLogger{entry: logrus.NewEntry(logger)}
}

func (l *LogrusLogger) withFields(fields LogFields) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	return l.entry.WithFields(logrus.Fields(fields))
}

// Debug logs a debug message.
func (l *LogrusLogger) Debug(msg string, fields LogFields) {
	l.withFields(fields).Debug(msg)
}

// Info logs an info message.
func (l *LogrusLogger) Info(msg string, fields LogFields) {
	l.withFields(fields).Info(msg)
}

// Warn logs a warning message.
func (l *LogrusLogger) Warn(msg string, fields LogFields) {
	l.withFields(fields).Warn(msg)
}

// Error logs an error message.
func (l *LogrusLogger) Error(msg string, fields LogFields) {
	l.withFields(fields).Error(msg)
}

// WithFields returns a new logger with the given fields added.
func (l *LogrusLogger) WithFields(fields LogFields) Logger {
	return &LogrusLogger{entry: l.withFields(fields)}
}

// Level returns the current log level.
func (l *LogrusLogger) Level() LogLevel {
	switch l.entry.Logger.GetLevel() {
	case logrus.DebugLevel, logrus.TraceLevel:
		return LogLevelDebug
	case logrus.InfoLevel:
		return LogLevelInfo
	case logrus.WarnLevel:
		return LogLevelWarn
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return LogLevelError
	default:
		return LogLevelNone
	}
}

// SetLevel sets the log level.
func (l *LogrusLogger) SetLevel(level LogLevel) {
	switch level {
	case LogLevelDebug:
		l.entry.Logger.SetLevel(logrus.DebugLevel)
	case LogLevelInfo:
		l.entry.Logger.SetLevel(logrus.InfoLevel)
	case LogLevelWarn:
		l.entry.Logger.SetLevel(logrus.WarnLevel)
	case LogLevelError:
		l.entry.Logger.SetLevel(logrus.ErrorLevel)
	default:
		l.entry.Logger.SetLevel(logrus.PanicLevel)
	}
}
