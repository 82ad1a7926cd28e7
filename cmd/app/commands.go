package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"PriceCast/internal/di"
	"PriceCast/internal/domain/models"
	"PriceCast/internal/repository"
	"PriceCast/internal/services/calendar"
	"PriceCast/internal/usecase"
	"PriceCast/pkg/config"
	applogger "PriceCast/pkg/logger"
	"PriceCast/pkg/server"
	"PriceCast/pkg/util"
)

type cli struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "pricecast",
		Short:         "Rolling weekly electricity price forecasts",
		Long:          "PriceCast reconciles last week's forecast, retrains on history before this week and publishes the new week's hourly forecast.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.LoadWithEnv(c.configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "config/config.yaml", "config file path")

	root.AddCommand(
		c.weeklyCmd(),
		c.bootstrapCmd(),
		c.reconcileCmd(),
		c.exportCmd(),
		c.importCmd(),
		c.serveCmd(),
	)
	return root
}

// withApp wires the application for one command and releases it afterwards.
func (c *cli) withApp(fn func(app *server.App) error) error {
	app, cleanup, err := di.InitializeApp(c.cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()
	return fn(app)
}

func (c *cli) weeklyCmd() *cobra.Command {
	var week string
	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Run the cycle for the current week",
		Long:  "Run reconcile, retrain, forecast and publish for the current market week, or for --week treated as the current one.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(func(app *server.App) error {
				var (
					rep *usecase.CycleReport
					err error
				)
				if week == "" {
					rep, err = app.Runner.RunWeekly(cmd.Context())
				} else {
					w, perr := parseWeek(week)
					if perr != nil {
						return perr
					}
					rep, err = app.Runner.RunForWindow(cmd.Context(), w)
				}
				printReport(cmd.OutOrStdout(), rep)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&week, "week", "", "any date of the week to run (YYYY-MM-DD)")
	return cmd
}

func (c *cli) bootstrapCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Run two consecutive cycles to seed an empty installation",
		Long:  "Run the cycle for the week of --from and the week after it. Without --from, cycle.bootstrap_from is used, then the previous week.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if from == "" {
				from = c.cfg.Cycle.BootstrapFrom
			}
			var start time.Time
			if from != "" {
				w, err := parseWeek(from)
				if err != nil {
					return err
				}
				start = w.Start
			}
			return c.withApp(func(app *server.App) error {
				reports, err := app.Runner.Bootstrap(cmd.Context(), start)
				for _, rep := range reports {
					printReport(cmd.OutOrStdout(), rep)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "any date of the first week (YYYY-MM-DD)")
	return cmd
}

func (c *cli) reconcileCmd() *cobra.Command {
	var week string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Score a past week's forecast against realized prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := parseWeek(week)
			if err != nil {
				return err
			}
			return c.withApp(func(app *server.App) error {
				rec, err := app.Reconciler.Reconcile(cmd.Context(), w)
				var skipped *models.ReconciliationSkipped
				if errors.As(err, &skipped) {
					fmt.Fprintf(cmd.OutOrStdout(), "week %s not scored: %s\n", w.ID(), skipped.Reason)
					return err
				}
				if err != nil {
					return err
				}
				mape := "n/a"
				if rec.MAPEComputable {
					mape = fmt.Sprintf("%.2f%%", rec.MAPE)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "week %s: MAE %.2f RMSE %.2f MAPE %s (%d hours, coverage %.1f%%)\n",
					w.ID(), rec.MAE, rec.RMSE, mape, rec.SampleCount, rec.Coverage*100)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&week, "week", "", "any date of the week to score (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("week")
	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Publish the snapshot from stored forecasts and comparisons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(func(app *server.App) error {
				res, err := app.Publisher.Publish(cmd.Context(), app.Runner.CurrentWindow())
				var degraded *models.PublishDegraded
				if errors.As(err, &degraded) && degraded.Written {
					app.Log.Warn("snapshot published with gaps", applogger.Error(err))
					err = nil
				}
				if res != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "exported to %v, %d forecast hours, missing %v\n",
						res.Exported, len(res.Snapshot.CurrentWeek.Forecasts), res.Snapshot.Missing)
				}
				return err
			})
		},
	}
}

func (c *cli) importCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load realized hourly prices from a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := c.cfg.Cycle.Location()
			if err != nil {
				return err
			}
			obs, err := repository.LoadPricesCSV(path, loc)
			if err != nil {
				return err
			}
			return c.withApp(func(app *server.App) error {
				if err := app.Importer.WriteObservations(cmd.Context(), obs); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d prices from %s\n", len(obs), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&path, "csv", "", "price CSV with timestamp and price columns")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the forecast API and run the weekly schedule when configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(func(app *server.App) error {
				return app.Serve(cmd.Context())
			})
		},
	}
}

// parseWeek snaps any date to the window of its week.
func parseWeek(s string) (models.TimeWindow, error) {
	d, ok := util.ParseDate(s)
	if !ok {
		return models.TimeWindow{}, fmt.Errorf("week %q: want YYYY-MM-DD", s)
	}
	return calendar.WindowStarting(d), nil
}

func printReport(w io.Writer, rep *usecase.CycleReport) {
	if rep == nil {
		return
	}
	fmt.Fprintf(w, "cycle %s %s: %s (state %s)\n", rep.Mode, rep.Window.ID(), rep.Result(), rep.State)
	for _, s := range rep.Steps {
		line := fmt.Sprintf("  %-18s %-9s %s", s.Step, s.Status, s.Duration.Round(time.Millisecond))
		if s.Err != nil {
			line += "  " + s.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
}
