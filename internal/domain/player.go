package domain

import (
	"math"
	"time"
)

// DefaultLives is the number of lives a freshly created profile starts with.
const DefaultLives = 3

// User represents an account
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile holds the lifetime aggregate stats for a user
type Profile struct {
	UserID               string    `json:"user_id"`
	TotalScore           int64     `json:"total_score"`
	TotalCoinsCollected  int64     `json:"total_coins_collected"`
	TotalEnemiesDefeated int64     `json:"total_enemies_defeated"`
	TotalDeaths          int64     `json:"total_deaths"`
	TotalPlayTimeSeconds int64     `json:"total_play_time_seconds"`
	CurrentLives         int64     `json:"current_lives"`
	HighestScoreAchieved int64     `json:"highest_score_achieved"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// NewProfile returns the zeroed profile created alongside a user.
func NewProfile(userID string, now time.Time) Profile {
	return Profile{
		UserID:       userID,
		CurrentLives: DefaultLives,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ProfileDelta is an additive change to a profile. Lives, when set, replace
// the current value; HighestScore is folded with max.
type ProfileDelta struct {
	Score        int64
	Coins        int64
	Enemies      int64
	Deaths       int64
	PlayTime     int64
	Lives        *int64
	HighestScore int64
}

// Apply adds the delta to p. It returns ErrCounterOverflow, leaving p
// untouched, when any additive counter would pass math.MaxInt64.
func (d ProfileDelta) Apply(p *Profile, now time.Time) error {
	for _, c := range [][2]int64{
		{p.TotalScore, d.Score},
		{p.TotalCoinsCollected, d.Coins},
		{p.TotalEnemiesDefeated, d.Enemies},
		{p.TotalDeaths, d.Deaths},
		{p.TotalPlayTimeSeconds, d.PlayTime},
	} {
		if c[1] > 0 && c[0] > math.MaxInt64-c[1] {
			return ErrCounterOverflow
		}
	}

	p.TotalScore += d.Score
	p.TotalCoinsCollected += d.Coins
	p.TotalEnemiesDefeated += d.Enemies
	p.TotalDeaths += d.Deaths
	p.TotalPlayTimeSeconds += d.PlayTime
	if d.Lives != nil {
		p.CurrentLives = *d.Lives
	}
	p.HighestScoreAchieved = max(p.HighestScoreAchieved, d.HighestScore)
	p.UpdatedAt = now
	return nil
}

// ProfileUpdate sets the provided fields on a profile
type ProfileUpdate struct {
	TotalScore           *int64 `json:"total_score,omitempty"`
	TotalCoinsCollected  *int64 `json:"total_coins_collected,omitempty"`
	TotalEnemiesDefeated *int64 `json:"total_enemies_defeated,omitempty"`
	TotalDeaths          *int64 `json:"total_deaths,omitempty"`
	TotalPlayTimeSeconds *int64 `json:"total_play_time_seconds,omitempty"`
	CurrentLives         *int64 `json:"current_lives,omitempty"`
	HighestScoreAchieved *int64 `json:"highest_score_achieved,omitempty"`
}

// Validate rejects negative counters
func (u ProfileUpdate) Validate() error {
	for _, v := range []*int64{
		u.TotalScore, u.TotalCoinsCollected, u.TotalEnemiesDefeated, u.TotalDeaths,
		u.TotalPlayTimeSeconds, u.CurrentLives, u.HighestScoreAchieved,
	} {
		if v != nil && *v < 0 {
			return ErrNegativeAmount
		}
	}
	return nil
}

// Apply copies the provided fields onto p
func (u ProfileUpdate) Apply(p *Profile) {
	if u.TotalScore != nil {
		p.TotalScore = *u.TotalScore
	}
	if u.TotalCoinsCollected != nil {
		p.TotalCoinsCollected = *u.TotalCoinsCollected
	}
	if u.TotalEnemiesDefeated != nil {
		p.TotalEnemiesDefeated = *u.TotalEnemiesDefeated
	}
	if u.TotalDeaths != nil {
		p.TotalDeaths = *u.TotalDeaths
	}
	if u.TotalPlayTimeSeconds != nil {
		p.TotalPlayTimeSeconds = *u.TotalPlayTimeSeconds
	}
	if u.CurrentLives != nil {
		p.CurrentLives = *u.CurrentLives
	}
	if u.HighestScoreAchieved != nil {
		p.HighestScoreAchieved = *u.HighestScoreAchieved
	}
}

// ProfileStanding is a profile joined with the owning user's identity, the
// input row of a leaderboard recompute
type ProfileStanding struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	TotalScore int64  `json:"total_score"`
}

// RegisterRequest represents a request to create an account
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents a credential check
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AmountRequest carries a single counter change for the profile increment routes
type AmountRequest struct {
	Amount *int64 `json:"amount"`
}
