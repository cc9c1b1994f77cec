// Package sysutil holds small process-level helpers shared by the CLI:
// global logger setup and secret masking for log output.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetLogLevel sets the zerolog global level from a name such as "debug" or
// "WARN". "warning" is accepted as an alias; empty or unknown names mean info.
func SetLogLevel(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// SetupLogger replaces the global logger. With pretty set, output goes
// through a zerolog.ConsoleWriter; otherwise it is JSON lines. A nil out
// means stderr.
func SetupLogger(level string, pretty bool, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	SetLogLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger
}

// MaskToken hides all but the bot id part of a Telegram token
// ("123456:ABC..." -> "123456:***"). Anything else is fully masked.
func MaskToken(tok string) string {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return ""
	}
	id, _, ok := strings.Cut(tok, ":")
	if !ok || id == "" {
		return "***"
	}
	return id + ":***"
}

// FirstNonEmpty returns the first value that is not blank, unmodified, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
