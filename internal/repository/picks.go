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
	"github.com/shopspring/decimal"
)

// PickRepository handles pick database operations
type PickRepository struct {
	db *Database
}

const pickColumns = `
	p.id, p.pick_id, p.entity_type, p.entity_name, p.stat_type, p.bet_type,
	p.line::text, p.ceiling::text, p.confidence::text, p.run_id,
	p.created_date, p.created_at
`

// Insert stores a pick. A pick_id that already exists is left untouched.
func (r *PickRepository) Insert(ctx context.Context, pick *models.Pick) error {
	if err := pick.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO picks (
			pick_id, entity_type, entity_name, stat_type, bet_type,
			line, ceiling, confidence, run_id, created_date
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9, $10::date)
		ON CONFLICT (pick_id) DO NOTHING
		RETURNING id, created_at
	`

	start := time.Now()
	err := r.db.Pool.QueryRow(
		ctx, query,
		pick.PickID, string(pick.Subject.Kind), pick.Subject.Name, string(pick.Subject.Stat), string(pick.BetType),
		pick.Line.String(), decimalArg(pick.Ceiling), decimalArg(pick.Confidence), pick.RunID,
		pick.CreatedDate.Format(models.DateLayout),
	).Scan(&pick.ID, &pick.CreatedAt)
	observe("insert", "picks", start, err)

	if errors.Is(err, pgx.ErrNoRows) {
		log.Debug().Str("pick_id", pick.PickID.String()).Msg("Pick already stored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to insert pick: %w", err)
	}

	log.Debug().
		Int64("id", pick.ID).
		Str("pick_id", pick.PickID.String()).
		Str("subject", pick.Subject.String()).
		Str("bet_type", string(pick.BetType)).
		Msg("Pick inserted")

	return nil
}

// ListByDate returns the picks created on date. With unscoredOnly set,
// picks that already have a score result are left out.
func (r *PickRepository) ListByDate(ctx context.Context, date time.Time, unscoredOnly bool) ([]*models.Pick, error) {
	query := `SELECT ` + pickColumns + `
		FROM picks p
		LEFT JOIN score_results sr ON sr.pick_id = p.pick_id
		WHERE p.created_date = $1::date
		  AND ($2 = FALSE OR sr.pick_id IS NULL)
		ORDER BY p.id
	`

	start := time.Now()
	rows, err := r.db.Pool.Query(ctx, query, date.Format(models.DateLayout), unscoredOnly)
	if err != nil {
		observe("select", "picks", start, err)
		return nil, fmt.Errorf("failed to query picks: %w", err)
	}
	defer rows.Close()

	var picks []*models.Pick
	for rows.Next() {
		pick, err := scanPick(rows)
		if err != nil {
			observe("select", "picks", start, err)
			return nil, err
		}
		picks = append(picks, pick)
	}
	err = rows.Err()
	observe("select", "picks", start, err)
	if err != nil {
		return nil, fmt.Errorf("error iterating picks: %w", err)
	}

	return picks, nil
}

// CountByRun returns how many picks a pipeline run created
func (r *PickRepository) CountByRun(ctx context.Context, runID uuid.UUID) (int, error) {
	var n int
	start := time.Now()
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM picks WHERE run_id = $1`, runID).Scan(&n)
	observe("count", "picks", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count picks: %w", err)
	}
	return n, nil
}

// CountByDate returns how many picks were created on date
func (r *PickRepository) CountByDate(ctx context.Context, date string) (int, error) {
	var n int
	start := time.Now()
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM picks WHERE created_date = $1::date`, date).Scan(&n)
	observe("count", "picks", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count picks: %w", err)
	}
	return n, nil
}

func scanPick(rows pgx.Rows) (*models.Pick, error) {
	var (
		pick                models.Pick
		kind, stat, bet     string
		line                string
		ceiling, confidence *string
	)

	err := rows.Scan(
		&pick.ID, &pick.PickID, &kind, &pick.Subject.Name, &stat, &bet,
		&line, &ceiling, &confidence, &pick.RunID,
		&pick.CreatedDate, &pick.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan pick: %w", err)
	}

	pick.Subject.Kind = models.EntityType(kind)
	pick.Subject.Stat = models.StatType(stat)
	pick.BetType = models.BetType(bet)

	if pick.Line, err = decimal.NewFromString(line); err != nil {
		return nil, fmt.Errorf("pick %s has bad line %q: %w", pick.PickID, line, err)
	}
	if pick.Ceiling, err = parseDecimal(ceiling); err != nil {
		return nil, fmt.Errorf("pick %s has bad ceiling: %w", pick.PickID, err)
	}
	if pick.Confidence, err = parseDecimal(confidence); err != nil {
		return nil, fmt.Errorf("pick %s has bad confidence: %w", pick.PickID, err)
	}

	return &pick, nil
}

// decimalArg renders an optional numeric for a ::numeric placeholder
func decimalArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
