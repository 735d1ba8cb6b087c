// Package logging configures the process-wide logrus logger and hands out
// component-scoped entries.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config controls logger output.
type Config struct {
	// Level is a logrus level name (debug, info, warn, error).
	// Default: info
	Level string

	// Format is "text" or "json".
	// Default: text
	Format string

	// Output defaults to stderr.
	Output io.Writer
}

// Init applies cfg to the standard logrus logger.
func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	logrus.SetOutput(cfg.Output)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
				logrus.FieldKeyMsg:  "msg",
			},
		})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// For returns an entry tagged with the given component name.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}

// Truncate shortens s for log fields.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
