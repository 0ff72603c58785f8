// Package logging wires a single process-wide logrus logger in the style
// the pack's Socket.IO-shaped services use (structured, JSON in production,
// text in development), instead of the teacher's bare stdlib `log`.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger. mode "release" gets JSON output at info level;
// anything else gets human-readable text at debug level, matching the
// demo host's GinMode knob so one setting governs both.
func New(mode string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if mode == "release" {
		log.SetFormatter(&logrus.JSONFormatter{})
		log.SetLevel(logrus.InfoLevel)
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		log.SetLevel(logrus.DebugLevel)
	}

	return log
}

// WithSession returns an entry tagged with the Engine.IO session id, the
// shape every per-connection log line in this repo is built from.
func WithSession(log *logrus.Logger, sid string) *logrus.Entry {
	return log.WithField("sid", sid)
}
