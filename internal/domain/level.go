package domain

import "time"

// Level is a catalog entry
type Level struct {
	ID              string    `json:"id" yaml:"id"`
	LevelNumber     int       `json:"level_number" yaml:"level_number"`
	Name            string    `json:"name" yaml:"name"`
	SceneRef        string    `json:"scene_ref" yaml:"scene_ref"`
	UnlockThreshold int64     `json:"unlock_threshold" yaml:"unlock_threshold"`
	CreatedAt       time.Time `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"-"`
}

// LevelProgress holds the best-ever stats for one (user, level) pair
type LevelProgress struct {
	UserID          string     `json:"user_id"`
	LevelID         string     `json:"level_id"`
	IsCompleted     bool       `json:"is_completed"`
	CoinsCollected  int64      `json:"coins_collected"`
	EnemiesDefeated int64      `json:"enemies_defeated"`
	DeathCount      int64      `json:"death_count"`
	BestScore       int64      `json:"best_score"`
	BestTime        int64      `json:"best_time"`
	PlayCount       int64      `json:"play_count"`
	LastPlayedAt    *time.Time `json:"last_played_at,omitempty"`
}

// Completion is one completed attempt folded into LevelProgress
type Completion struct {
	Score    int64 `json:"score"`
	Coins    int64 `json:"coins_collected"`
	Enemies  int64 `json:"enemies_defeated"`
	Deaths   int64 `json:"death_count"`
	Duration int64 `json:"time_seconds"`
}

// Validate rejects negative counters
func (c Completion) Validate() error {
	if c.Score < 0 || c.Coins < 0 || c.Enemies < 0 || c.Deaths < 0 || c.Duration < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// Fold applies a completion to the existing progress record (nil when the
// pair has never been completed) and returns the new record.
//
// Coins, enemies and score only ever grow; play count grows by one.
// BestTime is overwritten with the latest duration rather than minimized:
// that is the historical behavior and is kept until product decides whether
// "best" should mean fastest.
func (c Completion) Fold(existing *LevelProgress, userID, levelID string, now time.Time) LevelProgress {
	p := LevelProgress{UserID: userID, LevelID: levelID}
	if existing != nil {
		p = *existing
	}
	p.IsCompleted = true
	p.CoinsCollected = max(p.CoinsCollected, c.Coins)
	p.EnemiesDefeated = max(p.EnemiesDefeated, c.Enemies)
	p.BestScore = max(p.BestScore, c.Score)
	p.DeathCount += c.Deaths
	p.BestTime = c.Duration
	p.PlayCount++
	played := now
	p.LastPlayedAt = &played
	return p
}
