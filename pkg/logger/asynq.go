package logger

import (
	"fmt"

	"github.com/rs/zerolog"
)

// TaskServerLogger satisfies the asynq.Logger interface so the worker's
// internal messages share the service log stream.
type TaskServerLogger struct {
	logger zerolog.Logger
}

func (l *Logger) TaskServer() *TaskServerLogger {
	return &TaskServerLogger{logger: l.logger.With().Str("component", "asynq").Logger()}
}

func (l *TaskServerLogger) Debug(args ...interface{}) {
	l.logger.Debug().Msg(fmt.Sprint(args...))
}

func (l *TaskServerLogger) Info(args ...interface{}) {
	l.logger.Info().Msg(fmt.Sprint(args...))
}

func (l *TaskServerLogger) Warn(args ...interface{}) {
	l.logger.Warn().Msg(fmt.Sprint(args...))
}

func (l *TaskServerLogger) Error(args ...interface{}) {
	l.logger.Error().Msg(fmt.Sprint(args...))
}

func (l *TaskServerLogger) Fatal(args ...interface{}) {
	l.logger.Fatal().Msg(fmt.Sprint(args...))
}
