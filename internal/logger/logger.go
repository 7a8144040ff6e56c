package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the process-wide logger. The level field is renamed to
// "severity" so Cloud Logging picks it up without a parser config.
func New() zerolog.Logger {
	zerolog.LevelFieldName = "severity"
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// Human-readable output for local development.
	if os.Getenv("ENV") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel)
		return logger
	}

	return logger.Level(zerolog.InfoLevel)
}
