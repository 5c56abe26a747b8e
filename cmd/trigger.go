package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/appsec/internal/api"
	"github.com/appsec/internal/config"
	"github.com/appsec/pkg/models"
)

// TriggerCommand returns the command that starts a run on a remote API server
func TriggerCommand() *cli.Command {
	return &cli.Command{
		Name:  "trigger",
		Usage: "Trigger a review run on an appsec API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "repo",
				Usage:    "Repository as owner/name",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "to_event",
				Aliases:  []string{"to"},
				Usage:    "Head ref of the change set",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "from_event",
				Aliases: []string{"from"},
				Usage:   "Base ref",
			},
			&cli.StringFlag{
				Name:  "url",
				Usage: "Runs endpoint (default from trigger.url)",
			},
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Wait for the run to finish and exit with its status",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Polling interval with --wait",
				Value: 5 * time.Second,
			},
			verboseFlag(),
		},
		Action: runTrigger,
	}
}

func runTrigger(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	url := cfg.Trigger.URL
	if override := c.String("url"); override != "" {
		url = override
	}
	token := cfg.Trigger.Token
	if token == "" {
		token = os.Getenv(config.EnvTriggerToken)
	}

	client, err := api.NewClient(url, token)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(c)
	defer cancel()

	id, err := client.CreateRun(ctx, models.ChangeSetRef{
		Repo: c.String("repo"),
		To:   c.String("to_event"),
		From: c.String("from_event"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Run %s queued\n", id)

	if !c.Bool("wait") {
		return nil
	}

	run, err := client.WaitRun(ctx, id, c.Duration("interval"))
	if run.Counts != nil {
		fmt.Printf("Run %s %s: %d suggestion(s), %d posted, %d dropped\n",
			id, run.Status, run.Counts.Suggestions, run.Counts.Posted, run.Counts.Dropped)
	}
	return err
}
