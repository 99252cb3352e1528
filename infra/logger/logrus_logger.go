package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogrusLogger implements Logger using sirupsen/logrus with JSON output.
type LogrusLogger struct {
	entry *logrus.Entry
}

func newLogrus(component, level string, w io.Writer) *LogrusLogger {
	l := logrus.New()
	l.SetOutput(w)
	if strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return &LogrusLogger{entry: l.WithField("component", component)}
}

func (l *LogrusLogger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }

func (l *LogrusLogger) Debugw(msg string, fields map[string]any) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l *LogrusLogger) Infof(format string, args ...any) { l.entry.Infof(format, args...) }

func (l *LogrusLogger) Infow(msg string, fields map[string]any) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (l *LogrusLogger) Warnf(format string, args ...any) { l.entry.Warnf(format, args...) }

func (l *LogrusLogger) Warnw(msg string, fields map[string]any) {
	l.entry.WithFields(logrus.Fields(fields)).Warn(msg)
}

func (l *LogrusLogger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
