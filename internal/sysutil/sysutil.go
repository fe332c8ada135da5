// Package sysutil holds process bootstrap helpers shared by the binaries:
// zerolog setup and small environment-string predicates.
package sysutil

import (
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLogLevel maps a level name to a zerolog level.
// Supported values (case-insensitive): debug, info, warn, error, fatal, panic.
// Unknown or empty values yield info.
func ParseLogLevel(lvl string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLogLevel configures the global zerolog level based on a string value.
func SetLogLevel(lvl string) {
	zerolog.SetGlobalLevel(ParseLogLevel(lvl))
}

// SetupLogger installs the process-wide logger for service.
//
// It sets the global level, replaces log.Logger (pretty console output when
// pretty is true, JSON otherwise), and makes it the fallback for
// zerolog.Ctx so code running outside a request still logs with the
// service field. A nil w means os.Stderr.
func SetupLogger(service, level string, pretty bool, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	SetLogLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(w).With().Timestamp().Str("service", service).Logger()

	log.Logger = l
	zerolog.DefaultContextLogger = &log.Logger
	return l
}

// IsTruthy reports whether an environment variable string should be considered true.
// Accepted values (case-insensitive): "1", "true", "yes", "y", "on".
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// IsFalsy reports whether v explicitly means false.
// Accepted values (case-insensitive): "0", "false", "no", "n", "off".
func IsFalsy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "false", "no", "n", "off":
		return true
	default:
		return false
	}
}

// FirstNonEmpty returns the first non-blank string from a variadic list.
// If all values are blank, it returns "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// RedactURL drops the userinfo of raw so it can be logged. Input that does
// not parse is replaced wholesale.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparseable url]"
	}
	u.User = nil
	return u.String()
}
