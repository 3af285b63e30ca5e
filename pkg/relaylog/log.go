// Package relaylog provides structured logging for the relay mesh using zerolog.
//
// A single global logger is configured once via Init and every component
// derives a child logger from it carrying the field relevant to that
// component (broker name, peer address, topic id, subscriber name). Session
// lifecycle events log at debug, state mutations at info, and protocol
// violations at warn. Listener failures are not logged here: they are
// returned as errors to the command, which prints them to stderr and exits.
package relaylog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance, configured by Init.
var Logger zerolog.Logger

// Level names accepted on the --log-level flag.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

func init() {
	// Sensible default so packages that log before Init runs (e.g. in tests)
	// still produce readable output instead of panicking on a zero Logger.
	Init(Config{Level: InfoLevel})
}

// Init (re)configures the global logger.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// Component returns a child logger tagged with a component name, e.g.
// "broker-core", "peer-link", "directory".
func Component(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithBroker tags a logger with the broker's own advertised address.
func WithBroker(logger zerolog.Logger, addr string) zerolog.Logger {
	return logger.With().Str("broker", addr).Logger()
}

// WithPeer tags a logger with a remote peer broker's address.
func WithPeer(logger zerolog.Logger, addr string) zerolog.Logger {
	return logger.With().Str("peer", addr).Logger()
}

// WithTopic tags a logger with a topic id.
func WithTopic(logger zerolog.Logger, topicID string) zerolog.Logger {
	return logger.With().Str("topic_id", topicID).Logger()
}

// WithSubscriber tags a logger with a subscriber name.
func WithSubscriber(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("subscriber", name).Logger()
}

// WithPublisher tags a logger with a publisher name.
func WithPublisher(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("publisher", name).Logger()
}
