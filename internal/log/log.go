package log

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the logging interface used across the program
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
}

type logger struct {
	*logrus.Entry
}

func (l *logger) WithField(key string, value interface{}) Logger {
	return &logger{l.Entry.WithField(key, value)}
}

// FromLogrus wraps a logrus logger
func FromLogrus(l *logrus.Logger) Logger {
	return &logger{logrus.NewEntry(l)}
}

// StandardLogger returns a logger based on the logrus standard logger
func StandardLogger() Logger {
	return FromLogrus(logrus.StandardLogger())
}

// New creates a logger with the level and output from the configuration.
// Output can be "split" (warnings and errors to stderr, the rest to
// stdout), "stdout", "stderr" or a file path.
func New(level, output string) (Logger, error) {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("Unable to set log level '%s': %w", level, err)
	}
	l.SetLevel(lvl)
	switch strings.ToLower(output) {
	case "", "split":
		l.SetOutput(ioutil.Discard)
		l.AddHook(NewSplitHook(os.Stdout, os.Stderr))
	case "stdout":
		l.SetOutput(os.Stdout)
	case "stderr":
		l.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("Unable to open log file '%s': %w", output, err)
		}
		l.SetOutput(f)
	}
	return FromLogrus(l), nil
}

// SplitHook writes warnings and errors to one writer and everything else
// to another one
type SplitHook struct {
	out io.Writer
	err io.Writer
}

func NewSplitHook(out, err io.Writer) *SplitHook {
	return &SplitHook{out: out, err: err}
}

func (h *SplitHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *SplitHook) Fire(entry *logrus.Entry) error {
	line, err := entry.Logger.Formatter.Format(entry)
	if err != nil {
		return err
	}
	w := h.out
	if entry.Level <= logrus.WarnLevel {
		w = h.err
	}
	_, err = w.Write(line)
	return err
}
