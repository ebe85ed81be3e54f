package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outcome is the graded result of a pick
type Outcome string

const (
	OutcomeHit        Outcome = "HIT"
	OutcomeMiss       Outcome = "MISS"
	OutcomePush       Outcome = "PUSH"
	OutcomeUnscorable Outcome = "UNSCORABLE"
)

// ScoreResult is the single stored grade for a pick
type ScoreResult struct {
	PickID      uuid.UUID        `db:"pick_id"`
	ActualValue *decimal.Decimal `db:"actual_value"`
	Outcome     Outcome          `db:"outcome"`
	ScoredAt    time.Time        `db:"scored_at"`
}
