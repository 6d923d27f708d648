// Package observ provides structured event logging and process metrics
// shared by the backtest and forward engines.
package observ

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init sets the global log level. Unknown levels fall back to info.
func Init(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logger = logger.Level(lvl)
}

// Log emits one structured event at info level.
func Log(event string, kv map[string]any) {
	emit(logger.Info(), event, kv)
}

// Warn emits one structured event at warn level.
func Warn(event string, kv map[string]any) {
	emit(logger.Warn(), event, kv)
}

// Error emits one structured event at error level.
func Error(event string, err error, kv map[string]any) {
	emit(logger.Error().Err(err), event, kv)
}

// Debug emits one structured event at debug level.
func Debug(event string, kv map[string]any) {
	emit(logger.Debug(), event, kv)
}

func emit(e *zerolog.Event, event string, kv map[string]any) {
	for k, v := range kv {
		e = e.Interface(k, v)
	}
	e.Msg(event)
}
