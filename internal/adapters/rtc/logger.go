package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggerFactory routes pion's internal logging into zerolog. Pion is
// chatty, so trace output maps to zerolog trace and everything else keeps
// its level.
type LoggerFactory struct {
	Level zerolog.Level
}

func (f LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	l := log.With().Str("module", "pion").Str("scope", scope).Logger().Level(f.Level)
	return leveled{l: l}
}

type leveled struct {
	l zerolog.Logger
}

func (p leveled) Trace(msg string)                  { p.l.Trace().Msg(msg) }
func (p leveled) Tracef(format string, args ...any) { p.l.Trace().Msg(fmt.Sprintf(format, args...)) }
func (p leveled) Debug(msg string)                  { p.l.Debug().Msg(msg) }
func (p leveled) Debugf(format string, args ...any) { p.l.Debug().Msg(fmt.Sprintf(format, args...)) }
func (p leveled) Info(msg string)                   { p.l.Info().Msg(msg) }
func (p leveled) Infof(format string, args ...any)  { p.l.Info().Msg(fmt.Sprintf(format, args...)) }
func (p leveled) Warn(msg string)                   { p.l.Warn().Msg(msg) }
func (p leveled) Warnf(format string, args ...any)  { p.l.Warn().Msg(fmt.Sprintf(format, args...)) }
func (p leveled) Error(msg string)                  { p.l.Error().Msg(msg) }
func (p leveled) Errorf(format string, args ...any) { p.l.Error().Msg(fmt.Sprintf(format, args...)) }
