package logger

import (
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger from LOG_DEBUG and LOG_PRETTY.
// Services log through zerolog/log after this runs.
func Init() {
	pretty, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv("LOG_PRETTY")))
	debug, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv("LOG_DEBUG")))

	if pretty {
		log.Logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	if debug {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}
}
