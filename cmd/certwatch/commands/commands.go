package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/mr-karan/certwatch/internal/app"
	"github.com/mr-karan/certwatch/internal/cli/client"
	"github.com/mr-karan/certwatch/internal/cli/render"
)

// serveCommand runs the API server and the notification scheduler.
func (a *App) serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the API server and the notification scheduler",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to server config file",
				Value:   "config.toml",
				Sources: cli.EnvVars("CERTWATCH_CONFIG"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return a.runServe(ctx, cmd.String("config"))
		},
	}
}

func (a *App) runServe(ctx context.Context, configPath string) error {
	application, err := app.New(app.Options{
		ConfigPath: configPath,
		Version:    a.Version,
	})
	if err != nil {
		return err
	}

	if err := application.Initialize(ctx); err != nil {
		_ = application.Shutdown(context.Background())
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- application.Start()
	}()

	select {
	case <-ctx.Done():
		application.Logger.Info("received shutdown signal")
	case err = <-serverErr:
		if err != nil {
			application.Logger.Error("server stopped unexpectedly", "error", err)
		}
	}

	//nolint:contextcheck // the parent context is already cancelled here
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := application.Shutdown(shutdownCtx); shutdownErr != nil {
		return errors.Join(err, shutdownErr)
	}
	return err
}

// notifyCommand triggers a manual notification run on the server.
func (a *App) notifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "notify",
		Usage: "send due expiry notifications now",
		Description: `Runs the same check as the daily scheduler, attributed to an admin.
Items already notified at their current threshold are skipped.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "skip the confirmation prompt",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return a.runNotify(ctx, cmd.Bool("yes"))
		},
	}
}

func (a *App) runNotify(ctx context.Context, skipConfirm bool) error {
	apiClient, err := client.New(a.Config)
	if err != nil {
		return err
	}

	if !skipConfirm {
		confirmed := false
		err := huh.NewConfirm().
			Title("Send expiry notifications now?").
			Description(fmt.Sprintf("Server: %s", a.Config.Server.URL)).
			Affirmative("Send").
			Negative("Cancel").
			Value(&confirmed).
			Run()
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Println(mutedStyle.Render("Cancelled."))
			return nil
		}
	}

	log.Debug("triggering notification run", "server", a.Config.Server.URL)
	res, err := apiClient.SendNotifications(ctx)
	if err != nil {
		return fmt.Errorf("failed to send notifications: %w", err)
	}

	r, err := a.renderer()
	if err != nil {
		return err
	}
	if err := r.Report(res.Report, res.Degraded); err != nil {
		return err
	}
	if res.Degraded {
		return fmt.Errorf("%d item(s) failed, see history for details", res.Report.Failed)
	}
	return nil
}

// historyCommand lists recent notification history.
func (a *App) historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list recent notifications, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "number of rows (1-500)",
				Value:   100,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			apiClient, err := client.New(a.Config)
			if err != nil {
				return err
			}
			rows, err := apiClient.ListHistory(ctx, int(cmd.Int("limit")))
			if err != nil {
				return fmt.Errorf("failed to list history: %w", err)
			}
			r, err := a.renderer()
			if err != nil {
				return err
			}
			return r.History(rows)
		},
	}
}

// upcomingCommand lists items in the lookahead window.
func (a *App) upcomingCommand() *cli.Command {
	return &cli.Command{
		Name:  "upcoming",
		Usage: "list items expiring within the lookahead window",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			apiClient, err := client.New(a.Config)
			if err != nil {
				return err
			}
			items, err := apiClient.ListUpcoming(ctx)
			if err != nil {
				return fmt.Errorf("failed to list upcoming expiries: %w", err)
			}
			r, err := a.renderer()
			if err != nil {
				return err
			}
			return r.Upcoming(items)
		},
	}
}

// configCommand returns the config subcommand
func (a *App) configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "manage CLI configuration",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "show current configuration and server status",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return a.runConfigShow(ctx)
				},
			},
			{
				Name:      "set",
				Usage:     "set a configuration value",
				ArgsUsage: "<key> <value>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					args := cmd.Args().Slice()
					if len(args) < 2 {
						return fmt.Errorf("usage: certwatch config set <key> <value>")
					}
					if err := a.Config.Set(args[0], args[1]); err != nil {
						return err
					}
					if err := a.Config.Save(); err != nil {
						return fmt.Errorf("failed to save config: %w", err)
					}
					fmt.Printf("%s %s = %s\n", successStyle.Render("Set"), args[0], args[1])
					return nil
				},
			},
		},
	}
}

func (a *App) runConfigShow(ctx context.Context) error {
	fmt.Printf("Server URL:     %s\n", a.Config.Server.URL)
	fmt.Printf("Timeout:        %s\n", a.Config.Server.Timeout)
	fmt.Printf("Output Format:  %s\n", a.Config.Output.Format)

	apiClient, err := client.New(a.Config)
	if err != nil {
		return err
	}
	meta, err := apiClient.GetMeta(ctx)
	if err != nil {
		fmt.Printf("Server:         %s\n", mutedStyle.Render("unreachable: "+err.Error()))
		return nil
	}
	fmt.Printf("Server Version: %s\n", meta.Version)
	fmt.Printf("Scheduler:      enabled=%t every %s\n", meta.SchedulerEnabled, meta.SchedulerInterval)
	fmt.Printf("Thresholds:     %v (lookahead %d days)\n", meta.Thresholds, meta.LookaheadDays)
	fmt.Printf("SMTP:           configured=%t\n", meta.SMTPConfigured)
	return nil
}

func (a *App) renderer() (*render.Renderer, error) {
	return render.New(os.Stdout, render.Options{
		Format: a.Config.Output.Format,
		Color:  a.Config.Output.Color,
	})
}
