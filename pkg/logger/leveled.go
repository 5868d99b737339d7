package logger

import (
	"github.com/rs/zerolog"
)

// LeveledLogger adapts Logger to the key/value logging interface used by
// go-retryablehttp clients.
type LeveledLogger struct {
	logger zerolog.Logger
}

func (l *Logger) Leveled(component string) *LeveledLogger {
	return &LeveledLogger{logger: l.logger.With().Str("component", component).Logger()}
}

func (l *LeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *LeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// Info is demoted to debug: retryablehttp logs every attempt at info level.
func (l *LeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *LeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}
