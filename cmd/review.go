package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/appsec/internal/config"
	"github.com/appsec/internal/providers"
	"github.com/appsec/internal/report"
	"github.com/appsec/internal/review"
	"github.com/appsec/internal/runerr"
	"github.com/appsec/pkg/models"
)

// ReviewCommand returns the review command
func ReviewCommand() *cli.Command {
	return &cli.Command{
		Name:  "review",
		Usage: "Review a change set for security issues and post fixes as suggestions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "repo",
				Usage: "Repository as owner/name (GitHub) or namespace/project (GitLab)",
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
				Usage:   "Base ref; reviews the head commit alone when omitted",
			},
			&cli.StringFlag{
				Name:    "source",
				Aliases: []string{"s"},
				Usage:   "Override the change-set source (github, gitlab or local)",
			},
			&cli.StringFlag{
				Name:  "diff-file",
				Usage: "Unified diff to review with the local source",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Run review without posting comments",
			},
			&cli.BoolFlag{
				Name:  "gate",
				Usage: "Fail the run on findings marked severity_failure (or at gate.fail_on when set)",
			},
			&cli.StringFlag{
				Name:  "artifacts-dir",
				Usage: "Write the stage transcripts of this run to `DIR`",
			},
			verboseFlag(),
		},
		Action: runReview,
	}
}

func runReview(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	// Flag overrides
	if source := c.String("source"); source != "" {
		cfg.General.Source = source
	}
	if c.Bool("dry-run") {
		cfg.General.DryRun = true
	}
	if c.Bool("gate") {
		cfg.Gate.Enabled = true
	}
	if dir := c.String("artifacts-dir"); dir != "" {
		cfg.General.ArtifactsDir = dir
	}

	settings, err := resolveSettings(cfg)
	if err != nil {
		return err
	}

	ref := models.ChangeSetRef{
		Repo: c.String("repo"),
		To:   c.String("to_event"),
		From: c.String("from_event"),
	}
	if err := providers.ValidateRef(ref, settings.Source != config.SourceLocal); err != nil {
		return err
	}
	if settings.Source == config.SourceLocal && c.String("diff-file") == "" {
		return runerr.Configuration("review", "--diff-file is required with the local source")
	}

	ctx, cancel := signalContext(c)
	defer cancel()

	source, err := review.NewSource(settings, c.String("diff-file"))
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

	outcome, err := service.Run(ctx, ref)
	report.NewStdout().Render(outcome, err)
	return err
}
