package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/appsec/internal/config"
	"github.com/appsec/internal/logging"
	"github.com/appsec/internal/runerr"
)

// loadConfig reads the file named by the global --config flag and sets up
// logging from it. --verbose forces debug logs.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, runerr.Configuration("load config", "%v", err)
	}

	level := cfg.General.LogLevel
	if c.Bool("verbose") {
		level = "debug"
	}
	if err := logging.Setup(level, cfg.General.LogFormat, os.Stderr); err != nil {
		return nil, runerr.Configuration("setup logging", "%v", err)
	}
	return cfg, nil
}

// resolveSettings resolves cfg against the process environment.
func resolveSettings(cfg *config.Config) (config.Settings, error) {
	return config.Resolve(cfg, os.LookupEnv)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func verboseFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Enable verbose output for this command",
	}
}
