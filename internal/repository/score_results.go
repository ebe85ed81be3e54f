package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alansee1/flooorgang/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// ScoreResultRepository handles score result database operations
type ScoreResultRepository struct {
	db *Database
}

// Upsert writes the result for a pick, replacing any earlier one
func (r *ScoreResultRepository) Upsert(ctx context.Context, result *models.ScoreResult) error {
	query := `
		INSERT INTO score_results (pick_id, actual_value, outcome, scored_at)
		VALUES ($1, $2::numeric, $3, $4)
		ON CONFLICT (pick_id) DO UPDATE SET
			actual_value = EXCLUDED.actual_value,
			outcome = EXCLUDED.outcome,
			scored_at = EXCLUDED.scored_at
	`

	start := time.Now()
	_, err := r.db.Pool.Exec(ctx, query,
		result.PickID, decimalArg(result.ActualValue), string(result.Outcome), result.ScoredAt,
	)
	observe("upsert", "score_results", start, err)
	if err != nil {
		return fmt.Errorf("failed to upsert score result: %w", err)
	}

	log.Debug().
		Str("pick_id", result.PickID.String()).
		Str("outcome", string(result.Outcome)).
		Msg("Score result upserted")

	return nil
}

// GetByPickID returns the stored result for a pick
func (r *ScoreResultRepository) GetByPickID(ctx context.Context, pickID uuid.UUID) (*models.ScoreResult, error) {
	query := `
		SELECT pick_id, actual_value::text, outcome, scored_at
		FROM score_results
		WHERE pick_id = $1
	`

	var (
		result  models.ScoreResult
		actual  *string
		outcome string
	)

	start := time.Now()
	err := r.db.Pool.QueryRow(ctx, query, pickID).Scan(&result.PickID, &actual, &outcome, &result.ScoredAt)
	observe("select", "score_results", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("score result for %s: %w", pickID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get score result: %w", err)
	}

	result.Outcome = models.Outcome(outcome)
	if result.ActualValue, err = parseDecimal(actual); err != nil {
		return nil, fmt.Errorf("score result %s has bad actual value: %w", pickID, err)
	}

	return &result, nil
}

// CountByDate returns outcome counts for picks created on date
func (r *ScoreResultRepository) CountByDate(ctx context.Context, date string) (map[models.Outcome]int, error) {
	query := `
		SELECT sr.outcome, COUNT(*)
		FROM score_results sr
		JOIN picks p ON p.pick_id = sr.pick_id
		WHERE p.created_date = $1::date
		GROUP BY sr.outcome
	`

	start := time.Now()
	rows, err := r.db.Pool.Query(ctx, query, date)
	if err != nil {
		observe("select", "score_results", start, err)
		return nil, fmt.Errorf("failed to count score results: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Outcome]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			observe("select", "score_results", start, err)
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[models.Outcome(outcome)] = n
	}
	err = rows.Err()
	observe("select", "score_results", start, err)
	if err != nil {
		return nil, fmt.Errorf("error iterating outcome counts: %w", err)
	}

	return counts, nil
}
