package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alansee1/flooorgang/internal/app"
	"github.com/alansee1/flooorgang/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newScoreCmd() *cobra.Command {
	var unscoredOnly bool

	c := &cobra.Command{
		Use:   "score [YYYY-MM-DD]",
		Short: "Score a day's picks against actual stats (defaults to yesterday)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				date, err := dateArg(firstArg(args), a.Config.Location(), -1)
				if err != nil {
					return err
				}

				report, err := a.Reconciler.Run(ctx, date, unscoredOnly)
				if err != nil {
					return err
				}

				fmt.Fprintf(os.Stdout, "%s: %d loaded, %d scored, %d left unscored\n",
					date, report.Loaded, len(report.Results), report.Transient)
				fmt.Fprintf(os.Stdout, "HIT %d  MISS %d  PUSH %d  UNSCORABLE %d  hit rate %.1f%%\n",
					report.Counts[models.OutcomeHit],
					report.Counts[models.OutcomeMiss],
					report.Counts[models.OutcomePush],
					report.Counts[models.OutcomeUnscorable],
					report.HitRate()*100)
				return nil
			})
		},
	}

	c.Flags().BoolVar(&unscoredOnly, "unscored-only", false, "skip picks that already have a result")
	return c
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.DB.Migrate(ctx)
			})
		},
	}
}

func newImportPicksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-picks FILE",
		Short: "Store picks from a JSON array file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := readPickInputs(args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				saved := 0
				for i := range inputs {
					pick, err := inputs[i].ToPick()
					if err != nil {
						log.Warn().Err(err).Int("index", i).Msg("Skipping invalid pick")
						continue
					}
					if err := a.DB.Picks.Insert(ctx, pick); err != nil {
						return err
					}
					saved++
				}
				fmt.Fprintf(os.Stdout, "%d of %d picks stored\n", saved, len(inputs))
				return nil
			})
		},
	}
}

func readPickInputs(path string) ([]models.PickInput, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open picks file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var inputs []models.PickInput
	if err := json.NewDecoder(r).Decode(&inputs); err != nil {
		return nil, fmt.Errorf("failed to decode picks: %w", err)
	}
	return inputs, nil
}
