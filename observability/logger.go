package observability

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ljbeal/MCP-remotemanager/config"
)

// NewLogger opens the fixed log file and returns a debug-level logger writing to it.
// The returned closer must be called once at shutdown.
func NewLogger(app string, cfg config.LogConfig) (zerolog.Logger, io.Closer, error) {
	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file %s: %w", cfg.File, err)
	}

	writers := []io.Writer{file}
	if cfg.Console {
		// stdout carries the MCP stdio stream
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.NoColor,
		})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(zerolog.DebugLevel).
		With().
		Timestamp().
		Str("app", app).
		Logger()
	return logger, file, nil
}

// Component derives the child logger used by one component
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
