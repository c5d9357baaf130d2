package domain

import "time"

// Rarity classifies an achievement
type Rarity string

const (
	RarityCommon    Rarity = "COMMON"
	RarityRare      Rarity = "RARE"
	RarityEpic      Rarity = "EPIC"
	RarityLegendary Rarity = "LEGENDARY"
)

// Achievement is an immutable catalog definition. Condition selects the
// predicate evaluated against the profile and Threshold is its bound.
type Achievement struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description"`
	Condition   string    `json:"condition" yaml:"condition"`
	Threshold   int64     `json:"threshold" yaml:"threshold"`
	Points      int64     `json:"points" yaml:"points"`
	Rarity      Rarity    `json:"rarity" yaml:"rarity"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

// PlayerAchievement is an unlock record
type PlayerAchievement struct {
	UserID        string       `json:"user_id"`
	AchievementID string       `json:"achievement_id"`
	UnlockedAt    time.Time    `json:"unlocked_at"`
	Progress      int64        `json:"progress"`
	Achievement   *Achievement `json:"achievement,omitempty"`
}

// UnlockResult reports the outcome of an unlock attempt
type UnlockResult struct {
	PlayerAchievement PlayerAchievement `json:"player_achievement"`
	AlreadyUnlocked   bool              `json:"already_unlocked"`
}
