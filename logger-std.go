//go:build !tinygo

package sx127x

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// defaultLogger derives from the global zerolog logger at info level, so the
// driver stays quiet unless the application opts into debug output.
func defaultLogger() Logger {
	return NewZerologLogger(log.Logger.Level(zerolog.InfoLevel))
}

// NewZerologLogger adapts a zerolog logger. Every entry carries
// component=sx127x.
func NewZerologLogger(l zerolog.Logger) Logger {
	return &zerologLogger{l: l.With().Str("component", "sx127x").Logger()}
}

type zerologLogger struct {
	l zerolog.Logger
}

func (z *zerologLogger) Debug(msg string) { z.l.Debug().Msg(msg) }
func (z *zerologLogger) Info(msg string)  { z.l.Info().Msg(msg) }
func (z *zerologLogger) Warn(msg string)  { z.l.Warn().Msg(msg) }
func (z *zerologLogger) Error(msg string) { z.l.Error().Msg(msg) }
