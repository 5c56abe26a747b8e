package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/appsec/internal/config"
	"github.com/appsec/internal/review"
	"github.com/appsec/internal/runerr"
)

// EnvCommand returns the command that checks the credential environment
func EnvCommand() *cli.Command {
	return &cli.Command{
		Name:  "env",
		Usage: "Check the credentials visible to appsec",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "source",
				Aliases: []string{"s"},
				Usage:   "Check the credentials of this source instead of general.source",
			},
			&cli.BoolFlag{
				Name:  "verify",
				Usage: "Send a one-word prompt to the selected reasoning provider",
			},
			verboseFlag(),
		},
		Action: runEnvCheck,
	}
}

func runEnvCheck(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if source := c.String("source"); source != "" {
		cfg.General.Source = source
	}

	result := config.CheckCredentials(cfg.General.Source, os.LookupEnv)
	PrintConfigCheck(os.Stdout, cfg.General.Source, result)
	if len(result.Missing) > 0 {
		return runerr.Configuration("check environment", "missing %s", strings.Join(result.Missing, ", "))
	}

	if !c.Bool("verify") {
		return nil
	}

	settings, err := resolveSettings(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c)
	defer cancel()

	connector, err := review.NewConnector(ctx, settings)
	if err != nil {
		return err
	}
	if err := connector.Ping(ctx); err != nil {
		return runerr.Communication("verify", err)
	}
	fmt.Printf("✓ %s (%s) answered\n", connector.GetProvider(), connector.GetModel())
	return nil
}

// PrintConfigCheck prints the credential check results
func PrintConfigCheck(w io.Writer, source string, result *config.CredentialReport) {
	fmt.Fprintln(w, "=== Credential Check ===")
	fmt.Fprintf(w, "Source: %s\n", source)
	fmt.Fprintln(w, "")

	if len(result.Missing) > 0 {
		fmt.Fprintln(w, "❌ Missing required variables:")
		for _, v := range result.Missing {
			fmt.Fprintf(w, "   - %s\n", v)
		}
		fmt.Fprintln(w, "")
	}

	if len(result.Present) > 0 {
		names := make([]string, 0, len(result.Present))
		for k := range result.Present {
			names = append(names, k)
		}
		sort.Strings(names)

		fmt.Fprintln(w, "✓ Configured variables:")
		for _, k := range names {
			fmt.Fprintf(w, "   - %s = %s\n", k, result.Present[k])
		}
		fmt.Fprintln(w, "")
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "⚠ Warning: %s\n", warning)
	}

	if len(result.Missing) == 0 {
		fmt.Fprintln(w, "✓ All required credentials are present")
	}

	fmt.Fprintln(w, "========================")
}

// LoadEnvFile loads environment variables from a file, overwriting existing ones.
func LoadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 && ((value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'')) {
			value = value[1 : len(value)-1]
		}

		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set env var %s: %w", key, err)
		}
	}

	return scanner.Err()
}
