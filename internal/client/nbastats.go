package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/alansee1/flooorgang/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// JSONCache is the subset of the Redis cache the stats client needs.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// DayLog is one day's box-score lines keyed by folded player or team name.
type DayLog struct {
	Date string                                `json:"date"`
	Kind models.EntityType                     `json:"kind"`
	Rows map[string]map[string]decimal.Decimal `json:"rows"`
}

// StatsClientConfig configures the stats.nba.com client. An empty Season
// derives the season id from the date being looked up.
type StatsClientConfig struct {
	BaseURL    string
	Season     string
	SeasonType string
	Timeout    time.Duration
	RatePerSec float64
	CacheTTL   time.Duration
}

// StatsClient resolves actual stat values from the league game log
type StatsClient struct {
	api     *apiClient
	cfg     StatsClientConfig
	breaker *gobreaker.CircuitBreaker
	cache   JSONCache

	mu   sync.Mutex
	logs map[string]*DayLog
}

// NewStatsClient creates an outcome source. cache may be nil.
func NewStatsClient(cfg StatsClientConfig, cache JSONCache) *StatsClient {
	headers := map[string]string{
		"User-Agent":         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		"Referer":            "https://www.nba.com/",
		"Origin":             "https://www.nba.com",
		"x-nba-stats-origin": "stats",
		"x-nba-stats-token":  "true",
	}

	st := gobreaker.Settings{
		Name:     "nba_stats",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}

	return &StatsClient{
		api:     newAPIClient("nba_stats", cfg.BaseURL, cfg.Timeout, cfg.RatePerSec, headers),
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker(st),
		cache:   cache,
		logs:    make(map[string]*DayLog),
	}
}

// SeasonFor returns the season id a date belongs to. A season opens in October
// and runs into the next calendar year.
func SeasonFor(day time.Time) string {
	start := day.Year()
	if day.Month() < time.October {
		start--
	}
	return fmt.Sprintf("%d-%02d", start, (start+1)%100)
}

func (c *StatsClient) season(day time.Time) string {
	if c.cfg.Season != "" {
		return c.cfg.Season
	}
	return SeasonFor(day)
}

// FetchActual returns the subject's stat on date, or nil when no line exists
// (did not play, unknown name, unsupported stat).
func (c *StatsClient) FetchActual(ctx context.Context, subject models.Subject, date string) (*decimal.Decimal, error) {
	dayLog, err := c.dayLog(ctx, subject.Kind, date)
	if err != nil {
		return nil, err
	}

	row, ok := dayLog.Rows[FoldName(subject.Name)]
	if !ok {
		return nil, nil
	}

	v, ok := row[string(subject.Stat)]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (c *StatsClient) dayLog(ctx context.Context, kind models.EntityType, date string) (*DayLog, error) {
	day, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	season := c.season(day)
	key := fmt.Sprintf("gamelog:%s:%s:%s", season, kind, date)

	c.mu.Lock()
	memo, ok := c.logs[key]
	c.mu.Unlock()
	if ok {
		return memo, nil
	}

	if c.cache != nil {
		var cached DayLog
		ok, err := c.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Stats cache read failed, fetching from source")
		} else if ok && len(cached.Rows) > 0 {
			c.remember(key, &cached)
			return &cached, nil
		}
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchDayLog(ctx, kind, day, season)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return nil, err
	}
	dayLog := res.(*DayLog)

	// No rows for the whole day usually means the games are not final yet.
	if len(dayLog.Rows) == 0 {
		return nil, fmt.Errorf("%w: empty game log for %s (season %s)", ErrTransient, date, season)
	}

	c.remember(key, dayLog)
	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, key, dayLog, c.cfg.CacheTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to cache stats log")
		}
	}

	return dayLog, nil
}

func (c *StatsClient) remember(key string, dayLog *DayLog) {
	c.mu.Lock()
	c.logs[key] = dayLog
	c.mu.Unlock()
}

type resultSet struct {
	Name    string          `json:"name"`
	Headers []string        `json:"headers"`
	RowSet  [][]interface{} `json:"rowSet"`
}

type gameLogResponse struct {
	ResultSets []resultSet `json:"resultSets"`
}

var statColumns = []models.StatType{
	models.StatPoints,
	models.StatRebounds,
	models.StatAssists,
	models.StatThreesMade,
}

func (c *StatsClient) fetchDayLog(ctx context.Context, kind models.EntityType, day time.Time, season string) (*DayLog, error) {
	date := day.Format(models.DateLayout)

	playerOrTeam, nameCol := "P", "PLAYER_NAME"
	if kind == models.EntityTeam {
		playerOrTeam, nameCol = "T", "TEAM_NAME"
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	params := url.Values{}
	params.Set("Counter", "0")
	params.Set("DateFrom", day.Format("01/02/2006"))
	params.Set("DateTo", day.Format("01/02/2006"))
	params.Set("Direction", "DESC")
	params.Set("LeagueID", "00")
	params.Set("PlayerOrTeam", playerOrTeam)
	params.Set("Season", season)
	params.Set("SeasonType", c.cfg.SeasonType)
	params.Set("Sorter", "DATE")

	body, _, err := c.api.get(ctx, "leaguegamelog", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch game log for %s: %w", date, err)
	}

	var resp gameLogResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse game log: %w", err)
	}

	dayLog := &DayLog{Date: date, Kind: kind, Rows: make(map[string]map[string]decimal.Decimal)}
	if len(resp.ResultSets) == 0 {
		return dayLog, nil
	}

	set := resp.ResultSets[0]
	idx := make(map[string]int, len(set.Headers))
	for i, h := range set.Headers {
		idx[h] = i
	}
	nameIdx, ok := idx[nameCol]
	if !ok {
		return nil, fmt.Errorf("game log missing %s column", nameCol)
	}

	for _, row := range set.RowSet {
		if nameIdx >= len(row) {
			continue
		}
		name, ok := row[nameIdx].(string)
		if !ok {
			continue
		}
		stats := make(map[string]decimal.Decimal, len(statColumns))
		for _, stat := range statColumns {
			i, ok := idx[string(stat)]
			if !ok || i >= len(row) {
				continue
			}
			if v, ok := row[i].(float64); ok {
				stats[string(stat)] = decimal.NewFromFloat(v)
			}
		}
		dayLog.Rows[FoldName(name)] = stats
	}

	log.Debug().
		Str("date", date).
		Str("kind", string(kind)).
		Int("rows", len(dayLog.Rows)).
		Msg("Game log fetched")

	return dayLog, nil
}
