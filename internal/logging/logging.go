// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options mirrors the log section of the config file.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// New builds a logger from opts. Unknown levels fall back to info.
func New(opts Options) *logrus.Logger {
	log := logrus.New()
	if opts.Output != nil {
		log.SetOutput(opts.Output)
	} else {
		log.SetOutput(os.Stdout)
	}

	level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(opts.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// Setup builds the logger and installs it as the standard logger so packages
// that log through logrus.StandardLogger pick up the same settings.
func Setup(opts Options) *logrus.Logger {
	log := New(opts)
	std := logrus.StandardLogger()
	std.SetOutput(log.Out)
	std.SetLevel(log.GetLevel())
	std.SetFormatter(log.Formatter)
	return log
}
