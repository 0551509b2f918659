package logging

import (
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

/* New builds the emulator logger given:
 a level name (debug, info, warn, error; anything else means info)
 an output writer */
func New(level string, out io.Writer) *log.Logger {
	logger := log.New()
	logger.SetOutput(out)
	logger.SetLevel(ParseLevel(level))
	logger.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "01/02/2006 03:04:05PM",
	})
	return logger
}

// ParseLevel maps a config level name onto a logrus level.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return New("error", io.Discard)
}
