package domain

import (
	"strings"
	"time"
)

// Period represents the time window a leaderboard snapshot covers
type Period string

const (
	PeriodAllTime Period = "ALLTIME"
	PeriodWeekly  Period = "WEEKLY"
	PeriodDaily   Period = "DAILY"
)

// Periods lists every period a recompute writes
var Periods = []Period{PeriodAllTime, PeriodWeekly, PeriodDaily}

// ParsePeriod accepts a period name in any case
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case PeriodAllTime, PeriodWeekly, PeriodDaily:
		return p, nil
	}
	return "", ErrInvalidPeriod
}

// LeaderboardEntry represents a single ranked snapshot row
type LeaderboardEntry struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username,omitempty"`
	Period       Period    `json:"period"`
	Rank         int64     `json:"rank"`
	TotalScore   int64     `json:"total_score"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// Snapshot is the result of one recompute
type Snapshot struct {
	CalculatedAt time.Time                     `json:"calculated_at"`
	Entries      map[Period][]LeaderboardEntry `json:"entries"`
}

// LeaderboardStats contains statistics about a leaderboard period
type LeaderboardStats struct {
	Period       Period `json:"period"`
	TotalPlayers int64  `json:"total_players"`
	TopScore     int64  `json:"top_score,omitempty"`
}
