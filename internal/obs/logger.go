// Package obs provides structured logging for every fulcrum process.
package obs

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with a fixed component tag. Other context
// (serverId, playerId, schemaKey, ...) is added only where a call site
// attaches it.
type Logger struct {
	*logrus.Logger
	component string
}

// Config controls level/format/output the way the process config loads it.
type Config struct {
	Level  string `envdecode:"LOG_LEVEL,default=info"`
	Format string `envdecode:"LOG_FORMAT,default=text"`
	Output string `envdecode:"LOG_OUTPUT,default=stdout"`
}

// New builds a Logger for the named component (e.g. "registry", "party").
func New(component string, cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	l.SetOutput(out)

	return &Logger{Logger: l, component: component}
}

// NewDefault builds a Logger with info/text/stdout defaults.
func NewDefault(component string) *Logger {
	return New(component, Config{Level: "info", Format: "text", Output: "stdout"})
}

// With returns an entry pre-populated with the component tag plus fields.
// A nil fields map is treated as empty.
func (l *Logger) With(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["component"] = l.component
	return l.WithFields(fields)
}
