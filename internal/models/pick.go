package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BetType is the side of a prop bet
type BetType string

const (
	BetOver  BetType = "OVER"
	BetUnder BetType = "UNDER"
)

// EntityType says whether a pick is about a player or a team
type EntityType string

const (
	EntityPlayer EntityType = "player"
	EntityTeam   EntityType = "team"
)

// StatType is the box-score column a line is set on
type StatType string

const (
	StatPoints     StatType = "PTS"
	StatRebounds   StatType = "REB"
	StatAssists    StatType = "AST"
	StatThreesMade StatType = "FG3M"
)

// Subject identifies what a pick is measured on.
type Subject struct {
	Kind EntityType
	Name string
	Stat StatType
}

func (s Subject) String() string {
	return fmt.Sprintf("%s %s %s", s.Kind, s.Name, s.Stat)
}

// Pick is a prediction emitted by the analysis pipeline
type Pick struct {
	ID          int64            `db:"id"`
	PickID      uuid.UUID        `db:"pick_id"`
	Subject     Subject          `db:"-"`
	BetType     BetType          `db:"bet_type"`
	Line        decimal.Decimal  `db:"line"`
	Ceiling     *decimal.Decimal `db:"ceiling"`
	Confidence  *decimal.Decimal `db:"confidence"`
	RunID       *uuid.UUID       `db:"run_id"`
	CreatedDate time.Time        `db:"created_date"`
	CreatedAt   time.Time        `db:"created_at"`
}

// Validate checks the field invariants of a pick.
func (p *Pick) Validate() error {
	switch p.BetType {
	case BetOver, BetUnder:
	default:
		return fmt.Errorf("invalid bet type %q", p.BetType)
	}

	switch p.Subject.Kind {
	case EntityPlayer, EntityTeam:
	default:
		return fmt.Errorf("invalid entity type %q", p.Subject.Kind)
	}

	if p.Subject.Name == "" {
		return fmt.Errorf("pick %s has no subject name", p.PickID)
	}

	if p.Ceiling != nil && p.BetType != BetUnder {
		return fmt.Errorf("pick %s: ceiling is only allowed on UNDER bets", p.PickID)
	}

	return nil
}

// PickInput is the JSON shape the scanner hands over for persistence
type PickInput struct {
	PickID     string   `json:"pick_id,omitempty"`
	EntityType string   `json:"entity_type"`
	EntityName string   `json:"entity_name"`
	StatType   string   `json:"stat_type"`
	BetType    string   `json:"bet_type"`
	Line       string   `json:"line"`
	Ceiling    *string  `json:"ceiling,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	RunID      string   `json:"run_id,omitempty"`
	ScanDate   string   `json:"scan_date"` // YYYY-MM-DD
}

// ToPick converts the input to a validated Pick. A missing pick_id gets a fresh one.
func (pi *PickInput) ToPick() (*Pick, error) {
	id := uuid.New()
	if pi.PickID != "" {
		parsed, err := uuid.Parse(pi.PickID)
		if err != nil {
			return nil, fmt.Errorf("invalid pick_id %q: %w", pi.PickID, err)
		}
		id = parsed
	}

	line, err := decimal.NewFromString(pi.Line)
	if err != nil {
		return nil, fmt.Errorf("invalid line %q: %w", pi.Line, err)
	}

	created, err := ParseDate(pi.ScanDate)
	if err != nil {
		return nil, err
	}

	pick := &Pick{
		PickID: id,
		Subject: Subject{
			Kind: EntityType(pi.EntityType),
			Name: pi.EntityName,
			Stat: StatType(pi.StatType),
		},
		BetType:     BetType(pi.BetType),
		Line:        line,
		CreatedDate: created,
	}

	if pi.Ceiling != nil {
		c, err := decimal.NewFromString(*pi.Ceiling)
		if err != nil {
			return nil, fmt.Errorf("invalid ceiling %q: %w", *pi.Ceiling, err)
		}
		pick.Ceiling = &c
	}

	if pi.Confidence != nil {
		c := decimal.NewFromFloat(*pi.Confidence)
		pick.Confidence = &c
	}

	if pi.RunID != "" {
		runID, err := uuid.Parse(pi.RunID)
		if err != nil {
			return nil, fmt.Errorf("invalid run_id %q: %w", pi.RunID, err)
		}
		pick.RunID = &runID
	}

	if err := pick.Validate(); err != nil {
		return nil, err
	}

	return pick, nil
}
