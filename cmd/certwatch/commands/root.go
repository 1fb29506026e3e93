// Package commands provides the certwatch command definitions.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/mr-karan/certwatch/internal/cli/config"
)

// Styles for CLI output
var (
	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7C3AED")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

// App holds the shared application state
type App struct {
	Config  *config.Config
	Version string
	Commit  string
	Date    string
}

// New creates the root CLI command with all subcommands
func New(version, commit, date string) *cli.Command {
	app := &App{
		Version: version,
		Commit:  commit,
		Date:    date,
	}

	return &cli.Command{
		Name:    "certwatch",
		Usage:   "Certificate and service ID expiry notifications",
		Version: version,
		Description: `certwatch emails the owning team when a certificate or service ID
   is about to expire.

   Run 'certwatch serve' to start the API and the daily scheduler, then use
   'certwatch upcoming', 'certwatch history' and 'certwatch notify' against it.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "cli-config",
				Usage:   "path to CLI config file",
				Sources: cli.EnvVars("CERTWATCH_CLI_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "server",
				Usage:   "certwatch server URL",
				Sources: cli.EnvVars("CERTWATCH_SERVER_URL"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output format: table or json",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "disable colored output",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("debug") {
				log.SetLevel(log.DebugLevel)
			}
			// Library code logs through slog; route it to the charm logger.
			slog.SetDefault(slog.New(log.Default()))

			cfg, err := config.Load(config.LoadOptions{
				ConfigPath: cmd.String("cli-config"),
			})
			if err != nil {
				log.Debug("config load warning", "error", err)
				cfg = config.Default()
			}

			if server := cmd.String("server"); server != "" {
				cfg.Server.URL = server
			}
			if output := cmd.String("output"); output != "" {
				cfg.Output.Format = output
			}
			if cmd.Bool("no-color") {
				cfg.Output.Color = false
				log.SetStyles(log.DefaultStyles())
				lipgloss.SetHasDarkBackground(false)
			}

			app.Config = cfg
			return ctx, nil
		},
		Commands: []*cli.Command{
			app.serveCommand(),
			app.notifyCommand(),
			app.historyCommand(),
			app.upcomingCommand(),
			app.configCommand(),
			app.versionCommand(),
		},
	}
}

// versionCommand shows version information
func (a *App) versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "show version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Printf("%s version %s\n", logoStyle.Render("certwatch"), a.Version)
			fmt.Printf("  commit: %s\n", mutedStyle.Render(a.Commit))
			fmt.Printf("  built:  %s\n", mutedStyle.Render(a.Date))
			return nil
		},
	}
}
