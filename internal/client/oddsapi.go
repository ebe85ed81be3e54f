package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/alansee1/flooorgang/internal/metrics"
	"github.com/alansee1/flooorgang/internal/models"
	"github.com/rs/zerolog/log"
)

// OddsClient reads the game calendar from The Odds API
type OddsClient struct {
	api      *apiClient
	apiKey   string
	sport    string
	timeout  time.Duration
	location *time.Location
}

// NewOddsClient creates a calendar client. Days are interpreted in loc.
func NewOddsClient(baseURL, apiKey, sport string, timeout time.Duration, loc *time.Location) *OddsClient {
	if loc == nil {
		loc = time.UTC
	}
	return &OddsClient{
		api:      newAPIClient("odds_api", baseURL, timeout, 5, nil),
		apiKey:   apiKey,
		sport:    sport,
		timeout:  timeout,
		location: loc,
	}
}

// FetchGames returns the games starting on runDate (a day in the client's zone), earliest first.
func (c *OddsClient) FetchGames(ctx context.Context, runDate string) ([]models.Game, error) {
	from, to, err := c.dayWindow(runDate)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	params.Set("dateFormat", "iso")
	params.Set("commenceTimeFrom", from.Format("2006-01-02T15:04:05Z"))
	params.Set("commenceTimeTo", to.Format("2006-01-02T15:04:05Z"))

	body, header, err := c.api.get(ctx, fmt.Sprintf("sports/%s/events", c.sport), params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	if remaining := header.Get("x-requests-remaining"); remaining != "" {
		if n, err := strconv.ParseFloat(remaining, 64); err == nil {
			metrics.OddsRequestsRemaining.Set(n)
		}
		log.Debug().Str("remaining", remaining).Msg("Odds API quota")
	}

	var events []models.GameInput
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("failed to parse events: %w", err)
	}

	games := make([]models.Game, 0, len(events))
	for i := range events {
		g, err := events[i].ToGame()
		if err != nil {
			log.Warn().Err(err).Str("event_id", events[i].ID).Msg("Skipping event with bad start time")
			continue
		}
		if g.StartTime.Before(from) || !g.StartTime.Before(to) {
			continue
		}
		games = append(games, *g)
	}

	sort.Slice(games, func(i, j int) bool { return games[i].StartTime.Before(games[j].StartTime) })

	log.Info().
		Str("date", runDate).
		Int("count", len(games)).
		Msg("Games fetched")

	return games, nil
}

// dayWindow returns [midnight, next midnight) of runDate in the client's zone, as UTC.
func (c *OddsClient) dayWindow(runDate string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(models.DateLayout, runDate, c.location)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: %w", runDate, err)
	}
	return day.UTC(), day.AddDate(0, 0, 1).UTC(), nil
}
