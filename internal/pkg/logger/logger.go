package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is re-exported so callers do not import logrus directly.
type Fields = logrus.Fields

type Config struct {
	Level      string
	Format     string
	Output     string
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type Logger struct {
	base   *logrus.Logger
	fields logrus.Fields
}

func New(cfg Config) (*Logger, error) {
	base := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	base.SetLevel(level)

	switch cfg.Format {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}

	base.SetOutput(resolveOutput(cfg))

	return &Logger{base: base, fields: logrus.Fields{}}, nil
}

func resolveOutput(cfg Config) io.Writer {
	switch cfg.Output {
	case "stderr":
		return os.Stderr
	case "file":
		path := cfg.FilePath
		if path == "" {
			path = "logs/news-copilot.log"
		}
		return &lumberjack.Logger{
			Filename:   path,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 14),
			Compress:   true,
		}
	default:
		return os.Stdout
	}
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func (l *Logger) entry() *logrus.Entry {
	return l.base.WithFields(l.fields)
}

// kvFields converts trailing "key", value pairs into structured fields.
func kvFields(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("arg%d", i)
		}
		fields[key] = kv[i+1]
	}
	return fields
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.entry().WithFields(kvFields(kv)).Debug(msg) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.entry().WithFields(kvFields(kv)).Info(msg) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.entry().WithFields(kvFields(kv)).Warn(msg) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.entry().WithFields(kvFields(kv)).Error(msg) }

func (l *Logger) WithError(err error) *Logger {
	return l.WithFields(Fields{"error": err})
}

func (l *Logger) WithFields(fields Fields) *Logger {
	merged := logrus.Fields{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{base: l.base, fields: merged}
}

// LogAgent records one agent operation with its timing and outcome.
func (l *Logger) LogAgent(sessionID, agent, operation string, duration time.Duration, fields map[string]interface{}, err error) {
	entry := l.entry().WithFields(logrus.Fields{
		"component":   "agent",
		"session_id":  sessionID,
		"agent":       agent,
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	}).WithFields(fields)

	if err != nil {
		entry.WithError(err).Error("agent operation failed")
		return
	}
	entry.Info("agent operation completed")
}

// LogService records one external-collaborator call (llm, redis, article fetch).
func (l *Logger) LogService(service, operation string, duration time.Duration, fields map[string]interface{}, err error) {
	entry := l.entry().WithFields(logrus.Fields{
		"component":   "service",
		"service":     service,
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	}).WithFields(fields)

	if err != nil {
		entry.WithError(err).Error("service call failed")
		return
	}
	entry.Debug("service call completed")
}

// LogAnalysis records a coordinator-level analysis lifecycle event.
func (l *Logger) LogAnalysis(sessionID, event string, duration time.Duration, err error) {
	entry := l.entry().WithFields(logrus.Fields{
		"component":   "coordinator",
		"session_id":  sessionID,
		"event":       event,
		"duration_ms": duration.Milliseconds(),
	})

	if err != nil {
		entry.WithError(err).Error("analysis event")
		return
	}
	entry.Info("analysis event")
}
