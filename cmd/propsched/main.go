package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alansee1/flooorgang/internal/app"
	"github.com/alansee1/flooorgang/internal/config"
	"github.com/alansee1/flooorgang/internal/metrics"
	"github.com/alansee1/flooorgang/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
)

func main() {
	Execute()
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCmd builds the propsched command tree
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "propsched",
		Short:         "Plans, arms and reconciles the daily NBA prop scanner run",
		Version:       fmt.Sprintf("%s (%s)", Version, CommitSHA),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogger()
		},
	}

	root.AddCommand(newPlanCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newScoreCmd())
	root.AddCommand(newCancelCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newImportPicksCmd())

	return root
}

// withApp loads config, wires the app and runs fn under a signal-aware context.
// Metrics are pushed to the gateway afterwards when one is configured.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runErr := fn(ctx, a)

	if cfg.PushgatewayURL != "" {
		if err := metrics.Push(cfg.PushgatewayURL, "propsched_"+cmd.Name()); err != nil {
			log.Warn().Err(err).Msg("Failed to push metrics")
		}
	}

	return runErr
}

// dateArg resolves an optional YYYY-MM-DD argument, defaulting to today
// plus offsetDays in the display zone.
func dateArg(given string, loc *time.Location, offsetDays int) (string, error) {
	if given == "" {
		return time.Now().In(loc).AddDate(0, 0, offsetDays).Format(models.DateLayout), nil
	}
	if _, err := models.ParseDate(given); err != nil {
		return "", err
	}
	return given, nil
}

// setupLogger configures the zerolog logger
func setupLogger() {
	// Pretty console logging in development
	if os.Getenv("APP_ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	level := zerolog.InfoLevel
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		parsedLevel, err := zerolog.ParseLevel(lvl)
		if err == nil {
			level = parsedLevel
		}
	}
	zerolog.SetGlobalLevel(level)
}
