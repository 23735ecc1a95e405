package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// loggerFactory routes pion's internal logging into zerolog. Pion is
// chatty, so its info level is demoted to debug.
type loggerFactory struct {
	logger zerolog.Logger
}

func newLoggerFactory(logger zerolog.Logger) logging.LoggerFactory {
	return loggerFactory{logger: logger}
}

func (f loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return pionLogger{logger: f.logger.With().Str("module", "pion").Str("scope", scope).Logger()}
}

type pionLogger struct {
	logger zerolog.Logger
}

func (l pionLogger) Trace(msg string)                          { l.logger.Trace().Msg(msg) }
func (l pionLogger) Tracef(format string, args ...interface{}) { l.Trace(fmt.Sprintf(format, args...)) }
func (l pionLogger) Debug(msg string)                          { l.logger.Trace().Msg(msg) }
func (l pionLogger) Debugf(format string, args ...interface{}) { l.Debug(fmt.Sprintf(format, args...)) }
func (l pionLogger) Info(msg string)                           { l.logger.Debug().Msg(msg) }
func (l pionLogger) Infof(format string, args ...interface{})  { l.Info(fmt.Sprintf(format, args...)) }
func (l pionLogger) Warn(msg string)                           { l.logger.Warn().Msg(msg) }
func (l pionLogger) Warnf(format string, args ...interface{})  { l.Warn(fmt.Sprintf(format, args...)) }
func (l pionLogger) Error(msg string)                          { l.logger.Error().Msg(msg) }
func (l pionLogger) Errorf(format string, args ...interface{}) { l.Error(fmt.Sprintf(format, args...)) }
