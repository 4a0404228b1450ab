package testutil

import (
	"flag"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

var (
	logFile   = ""
	logLevel  = "info"
	logStderr = false
)

func init() {
	flag.StringVar(&logFile, "log-file", logFile, "`file` to use for logging")
	flag.StringVar(&logLevel, "log-level", logLevel,
		"log level: trace, debug, info, warn, error, fatal, or panic")
	flag.BoolVar(&logStderr, "log-stderr", logStderr, "log to standard error")
}

// SetupLogger sends logs to the file given with -log-file, to stderr with -log-stderr and nowhere otherwise.
func SetupLogger() *log.Logger {
	switch {
	case logStderr:
		log.SetOutput(os.Stderr)
	case logFile != "":
		w, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			panic(err)
		}
		log.SetOutput(w)
	default:
		log.SetOutput(io.Discard)
	}

	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		panic(err)
	}
	log.SetLevel(ll)
	return log.StandardLogger()
}
