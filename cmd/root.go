package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"dataserver/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	rootCmd = &cobra.Command{
		Use:               "dataserver",
		Short:             "Read only access to database files",
		Long:              "Dataserver serves pages of large read only database files through a buffer pool.",
		PersistentPreRunE: rootPreRun,
		PersistentPostRun: rootPostRun,
		SilenceUsage:      true,
	}

	logFile   = ""
	logLevel  = "info"
	logStderr = false
	logWriter io.WriteCloser

	configFile = ""
	noConfig   = false

	// cfgFlags maps config variables to the flags that override them.
	cfgFlags = map[string]*pflag.Flag{}
	cfg      = config.Default()
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
	})

	fs := rootCmd.PersistentFlags()

	fs.StringVar(&logFile, "log-file", logFile, "`file` to use for logging")
	fs.StringVar(&logLevel, "log-level", logLevel,
		"log level: trace, debug, info, warn, error, fatal, or panic")
	fs.BoolVarP(&logStderr, "log-stderr", "s", logStderr, "log to standard error")

	fs.StringVar(&configFile, "config-file", configFile, "`file` to load config from")
	fs.BoolVar(&noConfig, "no-config", noConfig, "don't load config file")

	for _, name := range config.Names() {
		flg := strings.ReplaceAll(name, "_", "-")
		fs.String(flg, "", fmt.Sprintf("override config variable %s", name))
		cfgFlags[name] = fs.Lookup(flg)
	}
}

func Execute() error {
	return rootCmd.Execute()
}

func rootPreRun(cmd *cobra.Command, args []string) error {
	cfg = config.Default()
	used := map[string]struct{}{}
	for name, flg := range cfgFlags {
		if !flg.Changed {
			continue
		}
		if err := cfg.Set(name, flg.Value.String()); err != nil {
			return fmt.Errorf("dataserver: %s", err)
		}
		used[name] = struct{}{}
	}

	if configFile != "" && !noConfig {
		b, err := os.ReadFile(configFile)
		if err != nil {
			return fmt.Errorf("dataserver: %s", err)
		}
		if err := cfg.Apply(b, used); err != nil {
			return fmt.Errorf("dataserver: %s: %s", configFile, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("dataserver: %s", err)
	}

	switch {
	case logStderr:
		log.SetOutput(os.Stderr)
	case logFile != "":
		w, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			return fmt.Errorf("dataserver: %s", err)
		}
		logWriter = w
		log.SetOutput(logWriter)
	default:
		log.SetOutput(io.Discard)
	}

	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("dataserver: %s", err)
	}
	log.SetLevel(ll)

	log.WithField("pid", os.Getpid()).Info("dataserver starting")
	return nil
}

func rootPostRun(cmd *cobra.Command, args []string) {
	log.WithField("pid", os.Getpid()).Info("dataserver done")

	if logWriter != nil {
		logWriter.Close()
		logWriter = nil
	}
}
