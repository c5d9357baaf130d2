package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

// Memory is an in-memory Store used by tests and by the server when
// store.driver is "memory". It enforces the same unique keys and status
// compare-and-swap as the Postgres schema.
type Memory struct {
	mu sync.RWMutex

	users       map[string]*domain.User
	byUsername  map[string]string
	byEmail     map[string]string
	profiles    map[string]*domain.Profile
	levels      map[string]*domain.Level
	progress    map[progressKey]*domain.LevelProgress
	sessions    map[string]*domain.Session
	catalog     map[string]*domain.Achievement
	unlocks     map[progressKey]*domain.PlayerAchievement
	leaderboard map[domain.Period][]domain.LeaderboardEntry
}

type progressKey struct {
	userID string
	ref    string
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		users:       make(map[string]*domain.User),
		byUsername:  make(map[string]string),
		byEmail:     make(map[string]string),
		profiles:    make(map[string]*domain.Profile),
		levels:      make(map[string]*domain.Level),
		progress:    make(map[progressKey]*domain.LevelProgress),
		sessions:    make(map[string]*domain.Session),
		catalog:     make(map[string]*domain.Achievement),
		unlocks:     make(map[progressKey]*domain.PlayerAchievement),
		leaderboard: make(map[domain.Period][]domain.LeaderboardEntry),
	}
}

// Ping always succeeds
func (m *Memory) Ping(ctx context.Context) error { return nil }

// CreateUser inserts a user and its profile
func (m *Memory) CreateUser(ctx context.Context, user domain.User, profile domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; ok {
		return domain.ErrUserExists
	}
	if _, ok := m.byUsername[user.Username]; ok {
		return domain.ErrUserExists
	}
	if _, ok := m.byEmail[user.Email]; ok {
		return domain.ErrUserExists
	}

	u := user
	p := profile
	p.UserID = user.ID
	m.users[user.ID] = &u
	m.byUsername[user.Username] = user.ID
	m.byEmail[user.Email] = user.ID
	m.profiles[user.ID] = &p
	return nil
}

// GetUser returns a user by ID
func (m *Memory) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

// GetUserByUsername returns a user by username
func (m *Memory) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byUsername[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	out := *m.users[id]
	return &out, nil
}

// GetProfile returns a profile by user ID
func (m *Memory) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	out := *p
	return &out, nil
}

// UpdateProfile sets the provided fields
func (m *Memory) UpdateProfile(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	update.Apply(p)
	p.UpdatedAt = time.Now()
	out := *p
	return &out, nil
}

// ApplyProfileDelta adds the delta to the profile
func (m *Memory) ApplyProfileDelta(ctx context.Context, userID string, delta domain.ProfileDelta) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	if err := delta.Apply(p, time.Now()); err != nil {
		return nil, err
	}
	out := *p
	return &out, nil
}

// ListStandings returns every profile with its username
func (m *Memory) ListStandings(ctx context.Context) ([]domain.ProfileStanding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	standings := make([]domain.ProfileStanding, 0, len(m.profiles))
	for id, p := range m.profiles {
		standings = append(standings, domain.ProfileStanding{
			UserID:     id,
			Username:   m.users[id].Username,
			TotalScore: p.TotalScore,
		})
	}
	return standings, nil
}

// ListLevels returns the catalog ordered by level number
func (m *Memory) ListLevels(ctx context.Context) ([]domain.Level, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	levels := make([]domain.Level, 0, len(m.levels))
	for _, l := range m.levels {
		levels = append(levels, *l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].LevelNumber < levels[j].LevelNumber })
	return levels, nil
}

// GetLevel returns a catalog entry
func (m *Memory) GetLevel(ctx context.Context, levelID string) (*domain.Level, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.levels[levelID]
	if !ok {
		return nil, domain.ErrLevelNotFound
	}
	out := *l
	return &out, nil
}

// UpsertLevel inserts or replaces a catalog entry
func (m *Memory) UpsertLevel(ctx context.Context, level domain.Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, l := range m.levels {
		if id != level.ID && l.LevelNumber == level.LevelNumber {
			return domain.ErrLevelExists
		}
	}
	now := time.Now()
	if existing, ok := m.levels[level.ID]; ok {
		level.CreatedAt = existing.CreatedAt
	} else {
		level.CreatedAt = now
	}
	level.UpdatedAt = now
	m.levels[level.ID] = &level
	return nil
}

// GetLevelProgress returns one (user, level) record
func (m *Memory) GetLevelProgress(ctx context.Context, userID, levelID string) (*domain.LevelProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.progress[progressKey{userID, levelID}]
	if !ok {
		return nil, domain.ErrProgressNotFound
	}
	out := *p
	return &out, nil
}

// ListLevelProgress returns all progress records of a user
func (m *Memory) ListLevelProgress(ctx context.Context, userID string) ([]domain.LevelProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.LevelProgress
	for k, p := range m.progress {
		if k.userID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LevelID < out[j].LevelID })
	return out, nil
}

// RecordCompletion folds a completion into the progress record
func (m *Memory) RecordCompletion(ctx context.Context, userID, levelID string, c domain.Completion, at time.Time) (*domain.LevelProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.levels[levelID]; !ok {
		return nil, domain.ErrLevelNotFound
	}
	key := progressKey{userID, levelID}
	folded := c.Fold(m.progress[key], userID, levelID, at)
	m.progress[key] = &folded
	out := folded
	return &out, nil
}

// CreateSession inserts a new session
func (m *Memory) CreateSession(ctx context.Context, session domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[session.UserID]; !ok {
		return domain.ErrUserNotFound
	}
	if _, ok := m.levels[session.LevelID]; !ok {
		return domain.ErrLevelNotFound
	}
	s := session
	m.sessions[session.ID] = &s
	return nil
}

// GetSession returns a session by ID
func (m *Memory) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := *s
	return &out, nil
}

// UpdateActiveSession applies stats while the session is ACTIVE
func (m *Memory) UpdateActiveSession(ctx context.Context, sessionID string, update domain.StatsUpdate) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if s.Status != domain.SessionActive {
		return nil, domain.ErrSessionTerminal
	}
	update.Apply(s)
	out := *s
	return &out, nil
}

// EndAndFold performs the single ACTIVE to terminal transition and the
// profile and progress fold under one lock. Every step is computed on
// copies first so a failure leaves the store unchanged.
func (m *Memory) EndAndFold(ctx context.Context, sessionID string, end domain.SessionEnd, at time.Time) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if s.Status != domain.SessionActive {
		return nil, domain.ErrSessionTerminal
	}
	ended := *s
	end.Close(&ended, at)

	current, ok := m.profiles[ended.UserID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	profile := *current
	if err := ended.ProfileDelta().Apply(&profile, at); err != nil {
		return nil, err
	}

	key := progressKey{ended.UserID, ended.LevelID}
	var progress *domain.LevelProgress
	if ended.Status == domain.SessionCompleted {
		if _, ok := m.levels[ended.LevelID]; !ok {
			return nil, domain.ErrLevelNotFound
		}
		folded := ended.Completion().Fold(m.progress[key], ended.UserID, ended.LevelID, at)
		progress = &folded
	}

	*s = ended
	*current = profile
	if progress != nil {
		m.progress[key] = progress
	}
	out := ended
	return &out, nil
}

// ListSessions returns a page of a user's sessions, most recent first
func (m *Memory) ListSessions(ctx context.Context, userID string, page domain.Page) ([]domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []domain.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			all = append(all, *s)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.After(all[j].StartTime) })

	if page.Offset >= len(all) {
		return []domain.Session{}, nil
	}
	all = all[page.Offset:]
	if page.Limit > 0 && page.Limit < len(all) {
		all = all[:page.Limit]
	}
	return all, nil
}

// ListAchievements returns the catalog ordered by ID
func (m *Memory) ListAchievements(ctx context.Context) ([]domain.Achievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Achievement, 0, len(m.catalog))
	for _, a := range m.catalog {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetAchievement returns one definition
func (m *Memory) GetAchievement(ctx context.Context, achievementID string) (*domain.Achievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.catalog[achievementID]
	if !ok {
		return nil, domain.ErrAchievementNotFound
	}
	out := *a
	return &out, nil
}

// UpsertAchievement inserts or replaces a definition
func (m *Memory) UpsertAchievement(ctx context.Context, achievement domain.Achievement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.catalog[achievement.ID]; ok {
		achievement.CreatedAt = existing.CreatedAt
	} else if achievement.CreatedAt.IsZero() {
		achievement.CreatedAt = time.Now()
	}
	m.catalog[achievement.ID] = &achievement
	return nil
}

// ListPlayerAchievements returns a user's unlocks with definitions embedded
func (m *Memory) ListPlayerAchievements(ctx context.Context, userID string) ([]domain.PlayerAchievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.PlayerAchievement
	for k, pa := range m.unlocks {
		if k.userID != userID {
			continue
		}
		rec := *pa
		if a, ok := m.catalog[pa.AchievementID]; ok {
			def := *a
			rec.Achievement = &def
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnlockedAt.Before(out[j].UnlockedAt) })
	return out, nil
}

// UnlockAchievement inserts an unlock unless the pair exists and credits
// the points under the same lock
func (m *Memory) UnlockAchievement(ctx context.Context, pa domain.PlayerAchievement, points int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.catalog[pa.AchievementID]; !ok {
		return false, domain.ErrAchievementNotFound
	}
	current, ok := m.profiles[pa.UserID]
	if !ok {
		return false, domain.ErrUserNotFound
	}
	key := progressKey{pa.UserID, pa.AchievementID}
	if _, ok := m.unlocks[key]; ok {
		return false, nil
	}

	if points > 0 {
		profile := *current
		if err := (domain.ProfileDelta{Score: points}).Apply(&profile, time.Now()); err != nil {
			return false, err
		}
		*current = profile
	}
	rec := pa
	rec.Achievement = nil
	m.unlocks[key] = &rec
	return true, nil
}

// ReplaceLeaderboard swaps in a full snapshot
func (m *Memory) ReplaceLeaderboard(ctx context.Context, snapshot domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[domain.Period][]domain.LeaderboardEntry, len(snapshot.Entries))
	for period, entries := range snapshot.Entries {
		next[period] = append([]domain.LeaderboardEntry(nil), entries...)
	}
	m.leaderboard = next
	return nil
}

// GetLeaderboard returns the top rows of a period
func (m *Memory) GetLeaderboard(ctx context.Context, period domain.Period, limit int) ([]domain.LeaderboardEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.leaderboard[period]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return append([]domain.LeaderboardEntry(nil), entries...), nil
}

// GetLeaderboardEntry returns one user's row in a period
func (m *Memory) GetLeaderboardEntry(ctx context.Context, period domain.Period, userID string) (*domain.LeaderboardEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.leaderboard[period] {
		if e.UserID == userID {
			out := e
			return &out, nil
		}
	}
	return nil, domain.ErrPlayerNotRanked
}

var _ Store = (*Memory)(nil)
