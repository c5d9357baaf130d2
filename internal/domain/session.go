package domain

import "time"

// SessionStatus is the lifecycle state of a play attempt
type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionAbandoned SessionStatus = "ABANDONED"
	SessionFailed    SessionStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed from s
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionAbandoned, SessionFailed:
		return true
	}
	return false
}

// Session represents one play attempt
type Session struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	LevelID         string        `json:"level_id"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         *time.Time    `json:"end_time,omitempty"`
	Duration        int64         `json:"duration"`
	FinalScore      int64         `json:"final_score"`
	CoinsCollected  int64         `json:"coins_collected"`
	EnemiesDefeated int64         `json:"enemies_defeated"`
	DeathCount      int64         `json:"death_count"`
	LivesRemaining  int64         `json:"lives_remaining"`
	Status          SessionStatus `json:"status"`
}

// StartSessionRequest represents a request to open a session
type StartSessionRequest struct {
	UserID  string `json:"user_id,omitempty"`
	LevelID string `json:"level_id"`
}

// StatsUpdate is a partial set of cumulative counters. Nil fields are left
// untouched.
type StatsUpdate struct {
	FinalScore      *int64 `json:"final_score,omitempty"`
	CoinsCollected  *int64 `json:"coins_collected,omitempty"`
	EnemiesDefeated *int64 `json:"enemies_defeated,omitempty"`
	DeathCount      *int64 `json:"death_count,omitempty"`
	LivesRemaining  *int64 `json:"lives_remaining,omitempty"`
}

// Validate rejects negative counters
func (u StatsUpdate) Validate() error {
	for _, v := range []*int64{u.FinalScore, u.CoinsCollected, u.EnemiesDefeated, u.DeathCount, u.LivesRemaining} {
		if v != nil && *v < 0 {
			return ErrNegativeAmount
		}
	}
	return nil
}

// Empty reports whether the update carries no field
func (u StatsUpdate) Empty() bool {
	return u.FinalScore == nil && u.CoinsCollected == nil && u.EnemiesDefeated == nil &&
		u.DeathCount == nil && u.LivesRemaining == nil
}

// Apply copies the provided fields onto s
func (u StatsUpdate) Apply(s *Session) {
	if u.FinalScore != nil {
		s.FinalScore = *u.FinalScore
	}
	if u.CoinsCollected != nil {
		s.CoinsCollected = *u.CoinsCollected
	}
	if u.EnemiesDefeated != nil {
		s.EnemiesDefeated = *u.EnemiesDefeated
	}
	if u.DeathCount != nil {
		s.DeathCount = *u.DeathCount
	}
	if u.LivesRemaining != nil {
		s.LivesRemaining = *u.LivesRemaining
	}
}

// SessionEnd carries the terminal status and final counters of an attempt
type SessionEnd struct {
	Status          SessionStatus `json:"status"`
	FinalScore      int64         `json:"final_score"`
	CoinsCollected  int64         `json:"coins_collected"`
	EnemiesDefeated int64         `json:"enemies_defeated"`
	DeathCount      int64         `json:"death_count"`
	LivesRemaining  int64         `json:"lives_remaining"`
}

// Validate checks the status is terminal and counters are non-negative
func (e SessionEnd) Validate() error {
	if !e.Status.IsTerminal() {
		return ErrInvalidStatus
	}
	if e.FinalScore < 0 || e.CoinsCollected < 0 || e.EnemiesDefeated < 0 || e.DeathCount < 0 || e.LivesRemaining < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// Close stamps the terminal fields on s. Duration is whole seconds since
// the start time.
func (e SessionEnd) Close(s *Session, now time.Time) {
	ended := now
	s.EndTime = &ended
	s.Duration = int64(now.Sub(s.StartTime).Seconds())
	if s.Duration < 0 {
		s.Duration = 0
	}
	s.Status = e.Status
	s.FinalScore = e.FinalScore
	s.CoinsCollected = e.CoinsCollected
	s.EnemiesDefeated = e.EnemiesDefeated
	s.DeathCount = e.DeathCount
	s.LivesRemaining = e.LivesRemaining
}

// ProfileDelta is what an ended session adds to its owner's profile
func (s Session) ProfileDelta() ProfileDelta {
	lives := s.LivesRemaining
	return ProfileDelta{
		Score:        s.FinalScore,
		Coins:        s.CoinsCollected,
		Enemies:      s.EnemiesDefeated,
		Deaths:       s.DeathCount,
		PlayTime:     s.Duration,
		Lives:        &lives,
		HighestScore: s.FinalScore,
	}
}

// Completion is what a COMPLETED session folds into level progress
func (s Session) Completion() Completion {
	return Completion{
		Score:    s.FinalScore,
		Coins:    s.CoinsCollected,
		Enemies:  s.EnemiesDefeated,
		Deaths:   s.DeathCount,
		Duration: s.Duration,
	}
}

// StatsMessage is the wire format of a stats update pushed through Kafka
type StatsMessage struct {
	SessionID string      `json:"session_id"`
	UserID    string      `json:"user_id"`
	Stats     StatsUpdate `json:"stats"`
	SentAt    time.Time   `json:"sent_at"`
}

// Validate requires the session and the user the update claims to come from
func (m StatsMessage) Validate() error {
	if m.SessionID == "" {
		return ErrMissingSessionID
	}
	if m.UserID == "" {
		return ErrMissingUserID
	}
	return nil
}

// Page bounds a history query
type Page struct {
	Limit  int
	Offset int
}

// Push event types delivered to a user's websocket topic
const (
	EventSessionEnded        = "session_ended"
	EventAchievementUnlocked = "achievement_unlocked"
	EventLeaderboardUpdate   = "leaderboard_update"
)
