package reconciler

import (
	"github.com/alansee1/flooorgang/internal/models"
	"github.com/shopspring/decimal"
)

// Classify grades a pick against its actual value. A nil actual means no outcome data.
// Landing exactly on the line is a MISS for both sides.
func Classify(p *models.Pick, actual *decimal.Decimal) models.Outcome {
	if actual == nil {
		return models.OutcomeUnscorable
	}

	switch p.BetType {
	case models.BetOver:
		if actual.GreaterThan(p.Line) {
			return models.OutcomeHit
		}
		return models.OutcomeMiss

	case models.BetUnder:
		// Above the ceiling is treated as bad data, not a loss.
		if p.Ceiling != nil && actual.GreaterThan(*p.Ceiling) {
			return models.OutcomeUnscorable
		}
		if actual.LessThan(p.Line) {
			return models.OutcomeHit
		}
		return models.OutcomeMiss
	}

	return models.OutcomeUnscorable
}
