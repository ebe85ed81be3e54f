package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/alansee1/flooorgang/internal/app"
	"github.com/alansee1/flooorgang/internal/scheduler"
	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	var date string

	c := &cobra.Command{
		Use:   "plan",
		Short: "Show today's games and the planned scanner time without arming anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				runDate, err := dateArg(date, a.Config.Location(), 0)
				if err != nil {
					return err
				}

				run, games, err := a.Planner.PlanDay(ctx, runDate)
				if err != nil {
					return err
				}

				loc := a.Config.Location()
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIP-OFF\tAWAY\tHOME")
				for _, g := range games {
					fmt.Fprintf(w, "%s\t%s\t%s\n", g.StartTime.In(loc).Format("03:04 PM MST"), g.AwayTeam, g.HomeTeam)
				}
				if err := w.Flush(); err != nil {
					return err
				}

				fmt.Fprintf(os.Stdout, "\n%s: %s at %s\n", runDate, run.Reason, policy(a).Display(run))
				return nil
			})
		},
	}

	c.Flags().StringVar(&date, "date", "", "run date (YYYY-MM-DD), defaults to today")
	return c
}

func newCheckCmd() *cobra.Command {
	var date string

	c := &cobra.Command{
		Use:   "check",
		Short: "Plan and arm today's scanner run; a no-op once the day is armed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				runDate, err := dateArg(date, a.Config.Location(), 0)
				if err != nil {
					return err
				}

				run, res, err := a.Planner.PlanAndArm(ctx, runDate)
				if err != nil {
					return err
				}

				switch {
				case res.AlreadyArmed:
					fmt.Fprintf(os.Stdout, "%s: already armed\n", runDate)
				case res.Ran:
					fmt.Fprintf(os.Stdout, "%s: %s, scanner ran now\n", runDate, run.Reason)
				case res.JobID != "":
					fmt.Fprintf(os.Stdout, "%s: %s at %s (job %s)\n", runDate, run.Reason, policy(a).Display(run), res.JobID)
				default:
					fmt.Fprintf(os.Stdout, "%s: %s\n", runDate, run.Reason)
				}
				return nil
			})
		},
	}

	c.Flags().StringVar(&date, "date", "", "run date (YYYY-MM-DD), defaults to today")
	return c
}

func newRunCmd() *cobra.Command {
	var date string

	c := &cobra.Command{
		Use:   "run",
		Short: "Run the scanner now for a day (what armed jobs execute)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				runDate, err := dateArg(date, a.Config.Location(), 0)
				if err != nil {
					return err
				}
				return a.Pipeline.Run(ctx, runDate)
			})
		},
	}

	c.Flags().StringVar(&date, "date", "", "run date (YYYY-MM-DD), defaults to today")
	return c
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [YYYY-MM-DD]",
		Short: "Remove the day's armed job and clear its marker",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				runDate, err := dateArg(firstArg(args), a.Config.Location(), 0)
				if err != nil {
					return err
				}

				cancelled, err := a.Deferred.Cancel(ctx, runDate)
				if err != nil {
					return err
				}
				if !cancelled {
					fmt.Fprintf(os.Stdout, "%s: nothing armed\n", runDate)
					return nil
				}
				fmt.Fprintf(os.Stdout, "%s: cancelled\n", runDate)
				return nil
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [YYYY-MM-DD]",
		Short: "Show the day's marker, pending jobs, scanner runs and pick counts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				loc := a.Config.Location()
				runDate, err := dateArg(firstArg(args), loc, 0)
				if err != nil {
					return err
				}

				rec, jobs, err := a.Deferred.Status(ctx, runDate)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				defer w.Flush()

				if rec == nil {
					fmt.Fprintf(w, "Marker:\tnone\n")
				} else {
					start := "-"
					if rec.StartTime != nil {
						start = rec.StartTime.In(loc).Format("03:04 PM MST")
					}
					jobID := "-"
					if rec.JobID != nil {
						jobID = *rec.JobID
					}
					fmt.Fprintf(w, "Marker:\t%s at %s (job %s)\n", rec.Reason, start, jobID)
				}

				for _, j := range jobs {
					fmt.Fprintf(w, "Pending job:\t%s at %s\n", j.ID, j.At.In(loc).Format("2006-01-02 03:04 PM MST"))
				}

				runs, err := a.DB.ScannerRuns.ListByDate(ctx, runDate)
				if err != nil {
					return err
				}
				for _, r := range runs {
					fmt.Fprintf(w, "Scanner run:\t%s %s exit=%s games=%s/%s picks=%s\n",
						r.StartedAt.In(loc).Format("03:04 PM"), r.Status,
						nullInt(r.ExitCode.Int32, r.ExitCode.Valid),
						nullInt(r.GamesWithProps.Int32, r.GamesWithProps.Valid),
						nullInt(r.GamesScheduled.Int32, r.GamesScheduled.Valid),
						nullInt(r.PicksCreated.Int32, r.PicksCreated.Valid))
				}

				picks, err := a.DB.Picks.CountByDate(ctx, runDate)
				if err != nil {
					return err
				}
				counts, err := a.DB.Results.CountByDate(ctx, runDate)
				if err != nil {
					return err
				}
				scored := 0
				for _, n := range counts {
					scored += n
				}
				fmt.Fprintf(w, "Picks:\t%d created, %d scored\n", picks, scored)
				return nil
			})
		},
	}
}

func policy(a *app.App) scheduler.Policy {
	return scheduler.Policy{
		LeadTime:    a.Config.LeadTime,
		MinDeferral: a.Config.MinDeferral,
		Location:    a.Config.Location(),
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func nullInt(v int32, valid bool) string {
	if !valid {
		return "-"
	}
	return fmt.Sprint(v)
}
