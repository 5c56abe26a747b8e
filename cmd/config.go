package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/appsec/internal/config"
	"github.com/appsec/internal/runerr"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize a new configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   config.DefaultConfigFile,
					},
				},
				Action: runConfigInit,
			},
			{
				Name:  "validate",
				Usage: "Validate the configuration file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "credentials",
						Usage: "Also resolve credentials from the environment",
					},
				},
				Action: runConfigValidate,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return runerr.Configuration("init config", "%v", err)
	}

	fmt.Printf("Created configuration file at %s\n", outputPath)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return runerr.Configuration("load config", "%v", err)
	}

	if err := config.Validate(cfg); err != nil {
		return runerr.Configuration("validate config", "%v", err)
	}

	if c.Bool("credentials") {
		settings, err := resolveSettings(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Source: %s, reasoning provider: %s (%s)\n", settings.Source, settings.AI.Provider, settings.AI.Model)
	}

	fmt.Println("Configuration is valid")
	return nil
}
