package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/appsec/internal/api"
	"github.com/appsec/internal/config"
	"github.com/appsec/internal/review"
	"github.com/appsec/internal/runerr"
)

// ServeCommand returns the CLI command for starting the run trigger API
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the run trigger API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (default from server.port)",
			},
			verboseFlag(),
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if port := c.Int("port"); port > 0 {
		cfg.Server.Port = port
	}

	settings, err := resolveSettings(cfg)
	if err != nil {
		return err
	}
	if settings.Source == config.SourceLocal {
		return runerr.Configuration("serve", "the API server needs the github or gitlab source")
	}

	ctx, cancel := signalContext(c)
	defer cancel()

	source, err := review.NewSource(settings, "")
	if err != nil {
		return err
	}
	connector, err := review.NewConnector(ctx, settings)
	if err != nil {
		return err
	}
	service, err := review.NewService(settings, source, connector)
	if err != nil {
		return err
	}

	server, err := api.NewServer(settings.Server, service)
	if err != nil {
		return err
	}

	fmt.Printf("Starting appsec API server on port %d...\n", settings.Server.Port)
	return server.Start(ctx)
}

// TokenCommand returns the command that signs bearer tokens for the API
func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Sign a bearer token for the run trigger API with server.jwt_secret",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "subject",
				Usage: "Who the token is for, e.g. the CI system",
				Value: "ci",
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "Token lifetime; 0 never expires",
				Value: 90 * 24 * time.Hour,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret == "" {
				return runerr.Configuration("sign token", "server.jwt_secret is required")
			}

			token, err := api.NewToken(cfg.Server.JWTSecret, c.String("subject"), c.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, token)
			return nil
		},
	}
}
