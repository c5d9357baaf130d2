package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ThanhSi1008/tilevania-sub000/internal/config"
	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/metrics"
	"github.com/ThanhSi1008/tilevania-sub000/internal/store"
)

// SessionService creates, updates and ends play sessions and folds ended
// sessions into the lifetime profile and per-level progress
type SessionService struct {
	store    store.SessionStore
	config   *config.SessionConfig
	metrics  *metrics.Metrics
	notifier Notifier
	logger   *slog.Logger
	now      Clock
}

// NewSessionService creates a new session service
func NewSessionService(
	st store.SessionStore,
	cfg *config.SessionConfig,
	m *metrics.Metrics,
	notifier Notifier,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		store:    st,
		config:   cfg,
		metrics:  m,
		notifier: notifier,
		logger:   orDiscard(logger),
		now:      time.Now,
	}
}

// Start opens an ACTIVE session for the user on the level
func (s *SessionService) Start(ctx context.Context, userID, levelID string) (*domain.Session, error) {
	userID = strings.TrimSpace(userID)
	levelID = strings.TrimSpace(levelID)
	if userID == "" {
		return nil, domain.ErrMissingUserID
	}
	if levelID == "" {
		return nil, domain.ErrMissingLevelID
	}

	session := domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		LevelID:   levelID,
		StartTime: s.now().UTC(),
		Status:    domain.SessionActive,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}

	s.metrics.SessionStarted()
	s.logger.Info("session started", "session_id", session.ID, "user_id", userID, "level_id", levelID)
	return &session, nil
}

// Get returns a session owned by the caller. Every caller must be named.
func (s *SessionService) Get(ctx context.Context, callerID, sessionID string) (*domain.Session, error) {
	if callerID == "" {
		return nil, domain.ErrMissingUserID
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != callerID {
		return nil, domain.ErrNotOwner
	}
	return session, nil
}

// Update applies partial cumulative stats to an ACTIVE session owned by
// the caller
func (s *SessionService) Update(ctx context.Context, callerID, sessionID string, stats domain.StatsUpdate) (*domain.Session, error) {
	if err := stats.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, callerID, sessionID); err != nil {
		return nil, err
	}

	session, err := s.store.UpdateActiveSession(ctx, sessionID, stats)
	if err != nil {
		if errors.Is(err, domain.ErrSessionTerminal) {
			s.metrics.TerminalRejected()
		}
		return nil, err
	}
	return session, nil
}

// End moves an ACTIVE session to its terminal status and folds its totals
// into the profile, plus level progress when the attempt was COMPLETED.
// The store applies all of it as one unit, so a failed fold leaves the
// session ACTIVE and the client may retry.
func (s *SessionService) End(ctx context.Context, callerID, sessionID string, end domain.SessionEnd) (*domain.Session, error) {
	if err := end.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, callerID, sessionID); err != nil {
		return nil, err
	}

	session, err := s.store.EndAndFold(ctx, sessionID, end, s.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrSessionTerminal) {
			s.metrics.TerminalRejected()
			return nil, err
		}
		if domain.IsNotFoundError(err) || domain.IsValidationError(err) {
			return nil, err
		}
		s.logger.Error("failed to end session", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("ending session: %w", err)
	}

	s.metrics.SessionEnded(string(session.Status))
	s.logger.Info("session ended",
		"session_id", session.ID,
		"user_id", session.UserID,
		"status", session.Status,
		"duration", session.Duration,
		"final_score", session.FinalScore,
	)
	if s.notifier != nil {
		s.notifier.NotifyUser(session.UserID, domain.EventSessionEnded, session)
	}
	return session, nil
}

// History returns a page of the user's sessions, most recent first
func (s *SessionService) History(ctx context.Context, userID string, limit, offset int) ([]domain.Session, error) {
	if offset < 0 || limit < 0 {
		return nil, domain.ErrInvalidRequest
	}
	if limit == 0 {
		limit = s.config.DefaultHistoryLimit
	}
	if limit > s.config.MaxHistoryLimit {
		limit = s.config.MaxHistoryLimit
	}

	sessions, err := s.store.ListSessions(ctx, userID, domain.Page{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}
