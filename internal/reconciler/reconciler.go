package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/alansee1/flooorgang/internal/client"
	"github.com/alansee1/flooorgang/internal/metrics"
	"github.com/alansee1/flooorgang/internal/models"
	"github.com/alansee1/flooorgang/internal/notify"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PickStore loads picks for a day
type PickStore interface {
	ListByDate(ctx context.Context, date time.Time, unscoredOnly bool) ([]*models.Pick, error)
}

// ResultStore writes grades. Upsert replaces any existing result for the pick.
type ResultStore interface {
	Upsert(ctx context.Context, result *models.ScoreResult) error
}

// OutcomeSource returns a subject's actual stat for a day, or nil when there is none.
type OutcomeSource interface {
	FetchActual(ctx context.Context, subject models.Subject, date string) (*decimal.Decimal, error)
}

// Report summarizes a reconciliation pass
type Report struct {
	Date         string
	UnscoredOnly bool
	Loaded       int
	Results      []models.ScoreResult
	Counts       map[models.Outcome]int
	// Transient counts picks left as they were because the outcome source failed.
	Transient int
	Duration  time.Duration
}

// HitRate is hits over decided picks. Pushes and unscorable picks are excluded.
func (r *Report) HitRate() float64 {
	decided := r.Counts[models.OutcomeHit] + r.Counts[models.OutcomeMiss]
	if decided == 0 {
		return 0
	}
	return float64(r.Counts[models.OutcomeHit]) / float64(decided)
}

// Reconciler scores a day's picks against real outcomes
type Reconciler struct {
	picks    PickStore
	results  ResultStore
	source   OutcomeSource
	notifier notify.Sink
	timeout  time.Duration
	now      func() time.Time
}

// New creates a reconciler. timeout bounds each outcome lookup.
func New(picks PickStore, results ResultStore, source OutcomeSource, notifier notify.Sink, timeout time.Duration) *Reconciler {
	if notifier == nil {
		notifier = notify.NopSink{}
	}
	return &Reconciler{
		picks:    picks,
		results:  results,
		source:   source,
		notifier: notifier,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Reconcile scores the picks created on date. With unscoredOnly only picks lacking a
// result are loaded; otherwise every pick is re-scored and its result replaced.
func (r *Reconciler) Reconcile(ctx context.Context, date string, unscoredOnly bool) (*Report, error) {
	start := time.Now()

	day, err := models.ParseDate(date)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Date:         date,
		UnscoredOnly: unscoredOnly,
		Counts:       make(map[models.Outcome]int),
	}

	picks, err := r.picks.ListByDate(ctx, day, unscoredOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to load picks for %s: %w", date, err)
	}
	report.Loaded = len(picks)

	if len(picks) == 0 {
		log.Info().
			Str("date", date).
			Bool("unscored_only", unscoredOnly).
			Msg("No picks to score")
		report.Duration = time.Since(start)
		return report, nil
	}

	log.Info().
		Str("date", date).
		Int("picks", len(picks)).
		Bool("unscored_only", unscoredOnly).
		Msg("Scoring picks")

	for _, p := range picks {
		actual, err := r.fetch(ctx, p, date)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("reconciliation for %s interrupted: %w", date, ctx.Err())
			}
			if !client.IsTransient(err) {
				// Rejected credentials and unreadable responses are configuration errors.
				return nil, fmt.Errorf("outcome lookup for pick %s failed: %w", p.PickID, err)
			}

			// Leave the pick as it is so a later --unscored-only run can pick it up.
			report.Transient++
			log.Warn().
				Err(err).
				Str("pick_id", p.PickID.String()).
				Str("subject", p.Subject.String()).
				Msg("Outcome lookup failed, leaving pick unchanged")
			continue
		}

		result := models.ScoreResult{
			PickID:      p.PickID,
			ActualValue: actual,
			Outcome:     Classify(p, actual),
			ScoredAt:    r.now().UTC(),
		}

		if err := r.results.Upsert(ctx, &result); err != nil {
			return nil, fmt.Errorf("failed to save result for pick %s: %w", p.PickID, err)
		}

		report.Results = append(report.Results, result)
		report.Counts[result.Outcome]++
		metrics.RecordScore(string(result.Outcome))

		ev := log.Debug().
			Str("pick_id", p.PickID.String()).
			Str("subject", p.Subject.String()).
			Str("bet", string(p.BetType)).
			Str("line", p.Line.String()).
			Str("outcome", string(result.Outcome))
		if actual != nil {
			ev = ev.Str("actual", actual.String())
		}
		ev.Msg("Pick scored")
	}

	report.Duration = time.Since(start)
	metrics.RecordReconcile(report.Transient, report.Duration.Seconds())

	log.Info().
		Str("date", date).
		Int("scored", len(report.Results)).
		Int("hits", report.Counts[models.OutcomeHit]).
		Int("misses", report.Counts[models.OutcomeMiss]).
		Int("pushes", report.Counts[models.OutcomePush]).
		Int("unscorable", report.Counts[models.OutcomeUnscorable]).
		Int("transient", report.Transient).
		Float64("hit_rate", report.HitRate()).
		Dur("duration", report.Duration).
		Msg("Scoring complete")

	return report, nil
}

func (r *Reconciler) fetch(ctx context.Context, p *models.Pick, date string) (*decimal.Decimal, error) {
	if r.timeout <= 0 {
		return r.source.FetchActual(ctx, p.Subject, date)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.source.FetchActual(ctx, p.Subject, date)
}

// Run reconciles and reports the outcome to the notification sink.
func (r *Reconciler) Run(ctx context.Context, date string, unscoredOnly bool) (*Report, error) {
	report, err := r.Reconcile(ctx, date, unscoredOnly)
	if err != nil {
		metrics.RecordError("reconciler", "fatal")
		notify.Safe(ctx, r.notifier, notify.Event{
			Kind:    notify.ResultsError,
			Message: "Results tracker failed with error:",
			Context: []notify.Field{notify.F("Date", date)},
			Detail:  err.Error(),
		})
		return nil, err
	}

	if len(report.Results) > 0 || report.Transient > 0 {
		fields := []notify.Field{
			notify.F("Date", date),
			notify.F("Picks scored", len(report.Results)),
			notify.F("Record", fmt.Sprintf("%d-%d-%d", report.Counts[models.OutcomeHit], report.Counts[models.OutcomeMiss], report.Counts[models.OutcomePush])),
			notify.F("Hit rate", fmt.Sprintf("%.1f%%", report.HitRate()*100)),
		}
		if report.Transient > 0 {
			fields = append(fields, notify.F("Left unscored", report.Transient))
		}
		notify.Safe(ctx, r.notifier, notify.Event{
			Kind:    notify.ResultsSuccess,
			Message: "Results tracker completed successfully!",
			Context: fields,
		})
	}

	return report, nil
}
