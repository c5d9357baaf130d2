// Package store defines the persistence contract shared by the Postgres
// repository and the in-memory implementation.
//
// Cross-request coordination is delegated to these primitives rather than to
// in-process locks held by services: unique keys for users, profiles and unlocks,
// and a compare-and-swap on session status for the single terminal transition.
package store

import (
	"context"
	"time"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

// UserStore persists accounts
type UserStore interface {
	// CreateUser inserts the user and its zeroed profile together. Returns
	// domain.ErrUserExists when the username or email is taken.
	CreateUser(ctx context.Context, user domain.User, profile domain.Profile) error
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// ProfileStore persists lifetime aggregates
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.Profile, error)
	// ApplyProfileDelta adds the delta atomically and returns the new profile.
	// Returns domain.ErrCounterOverflow when a counter would pass MaxInt64.
	ApplyProfileDelta(ctx context.Context, userID string, delta domain.ProfileDelta) (*domain.Profile, error)
	ListStandings(ctx context.Context) ([]domain.ProfileStanding, error)
}

// LevelStore persists the catalog and per-level progress
type LevelStore interface {
	ListLevels(ctx context.Context) ([]domain.Level, error)
	GetLevel(ctx context.Context, levelID string) (*domain.Level, error)
	// UpsertLevel inserts or updates a catalog entry keyed by ID
	UpsertLevel(ctx context.Context, level domain.Level) error
	GetLevelProgress(ctx context.Context, userID, levelID string) (*domain.LevelProgress, error)
	ListLevelProgress(ctx context.Context, userID string) ([]domain.LevelProgress, error)
	// RecordCompletion folds a completion into the (user, level) record
	// following domain.Completion.Fold
	RecordCompletion(ctx context.Context, userID, levelID string, c domain.Completion, at time.Time) (*domain.LevelProgress, error)
}

// SessionStore persists play attempts
type SessionStore interface {
	CreateSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	// UpdateActiveSession applies stats only while the session is ACTIVE.
	// Returns domain.ErrSessionNotFound or domain.ErrSessionTerminal.
	UpdateActiveSession(ctx context.Context, sessionID string, update domain.StatsUpdate) (*domain.Session, error)
	// EndAndFold moves an ACTIVE session to a terminal status exactly once
	// and, in the same unit of work, adds its totals to the owner's profile
	// and folds a COMPLETED attempt into level progress. When any step fails
	// nothing is written and the session stays ACTIVE. A second call returns
	// domain.ErrSessionTerminal and changes nothing.
	EndAndFold(ctx context.Context, sessionID string, end domain.SessionEnd, at time.Time) (*domain.Session, error)
	// ListSessions returns a user's sessions, most recent first
	ListSessions(ctx context.Context, userID string, page domain.Page) ([]domain.Session, error)
}

// AchievementStore persists the catalog and unlock records
type AchievementStore interface {
	ListAchievements(ctx context.Context) ([]domain.Achievement, error)
	GetAchievement(ctx context.Context, achievementID string) (*domain.Achievement, error)
	UpsertAchievement(ctx context.Context, achievement domain.Achievement) error
	// ListPlayerAchievements returns unlocks with the definition embedded
	ListPlayerAchievements(ctx context.Context, userID string) ([]domain.PlayerAchievement, error)
	// UnlockAchievement inserts the unlock and credits points to the profile
	// together. It returns false, crediting nothing, when the pair already
	// exists. When crediting fails the unlock is not recorded.
	UnlockAchievement(ctx context.Context, pa domain.PlayerAchievement, points int64) (bool, error)
}

// LeaderboardStore persists ranked snapshots
type LeaderboardStore interface {
	// ReplaceLeaderboard swaps in every period of the snapshot at once
	ReplaceLeaderboard(ctx context.Context, snapshot domain.Snapshot) error
	// GetLeaderboard returns rows in rank order; a zero limit returns all rows
	GetLeaderboard(ctx context.Context, period domain.Period, limit int) ([]domain.LeaderboardEntry, error)
	GetLeaderboardEntry(ctx context.Context, period domain.Period, userID string) (*domain.LeaderboardEntry, error)
}

// Store is the full persistence surface
type Store interface {
	UserStore
	ProfileStore
	LevelStore
	SessionStore
	AchievementStore
	LeaderboardStore
	Ping(ctx context.Context) error
}
