// Package escrow is the root of an atomic multi-party exchange library. Two or
// more parties trade typed assets through a trade instance that either
// completes exactly as agreed or refunds every party what it deposited.
//
// The package itself only holds what is shared by every other package: the
// global logger and the list of prometheus collectors.
package escrow

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// EnvLogLevel is the name of the environment variable to change the logging
// level.
const EnvLogLevel = "LLVL"

const defaultLevel = zerolog.InfoLevel

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance. The level defaults to info and
// can be changed through the LLVL environment variable.
var Logger = zerolog.New(logout).Level(levelFromEnv()).
	With().Timestamp().Logger().
	With().Caller().Logger()

// PromCollectors exposes the prometheus collectors of the packages. A package
// appends its collectors in an init function and an application can register
// all of them at once.
var PromCollectors []prometheus.Collector

func levelFromEnv() zerolog.Level {
	lvl, err := zerolog.ParseLevel(os.Getenv(EnvLogLevel))
	if err != nil || os.Getenv(EnvLogLevel) == "" {
		return defaultLevel
	}

	return lvl
}
