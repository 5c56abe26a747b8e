package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/appsec/cmd"
	"github.com/appsec/internal/config"
	"github.com/appsec/internal/runerr"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "appsec",
		Usage:   "Security review of pull requests with inline fix suggestions for GitHub and GitLab",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   config.DefaultConfigFile,
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from `FILE` before running",
			},
		},
		Before: func(c *cli.Context) error {
			if path := c.String("env-file"); path != "" {
				if err := cmd.LoadEnvFile(path); err != nil {
					return runerr.Configuration("load env file", "%v", err)
				}
			}
			return nil
		},
		Commands: []*cli.Command{
			cmd.ReviewCommand(),
			cmd.ServeCommand(),
			cmd.TokenCommand(),
			cmd.TriggerCommand(),
			cmd.ConfigCommand(),
			cmd.EnvCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(runerr.ExitCode(err))
	}
}
