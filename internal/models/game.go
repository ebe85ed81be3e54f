package models

import (
	"fmt"
	"time"
)

// Game is a scheduled NBA game. StartTime is always UTC.
type Game struct {
	ID        string
	HomeTeam  string
	AwayTeam  string
	StartTime time.Time
}

// GameInput is an event as returned by The Odds API events endpoint
type GameInput struct {
	ID           string `json:"id"`
	SportKey     string `json:"sport_key"`
	SportTitle   string `json:"sport_title"`
	CommenceTime string `json:"commence_time"` // ISO 8601, UTC
	HomeTeam     string `json:"home_team"`
	AwayTeam     string `json:"away_team"`
}

// ToGame converts an API event to a Game
func (gi *GameInput) ToGame() (*Game, error) {
	start, err := time.Parse(time.RFC3339, gi.CommenceTime)
	if err != nil {
		return nil, fmt.Errorf("failed to parse commence_time %q for event %s: %w", gi.CommenceTime, gi.ID, err)
	}

	return &Game{
		ID:        gi.ID,
		HomeTeam:  gi.HomeTeam,
		AwayTeam:  gi.AwayTeam,
		StartTime: start.UTC(),
	}, nil
}

// StartTimes returns the start instants of the given games in order.
func StartTimes(games []Game) []time.Time {
	out := make([]time.Time, 0, len(games))
	for _, g := range games {
		out = append(out, g.StartTime)
	}
	return out
}
