package logx

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Debug        bool `split_words:"true" default:"false"`
	PrettyFormat bool `split_words:"true" default:"false"`
}

// Init configures the global zerolog logger. Turn-level details log at
// debug; leave Debug off in production so transcripts stay out of the
// logs.
func Init(opts ...Config) {
	var conf Config
	if len(opts) > 0 {
		conf = opts[0]
	}

	var base zerolog.Logger
	if conf.PrettyFormat {
		base = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		base = zerolog.New(os.Stdout)
	}

	level := zerolog.InfoLevel
	if conf.Debug {
		level = zerolog.DebugLevel
	}

	log.Logger = base.Level(level).With().
		Timestamp().
		Caller().
		Stack().
		Str("service", "booking-agent").
		Logger()
}
