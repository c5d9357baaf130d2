// Package playsession drives one play attempt per level entry on the game
// client: it opens the server session, keeps stats flowing while the level
// is played and closes the session exactly once however the level ends.
package playsession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/levelresolver"
	"github.com/ThanhSi1008/tilevania-sub000/internal/statsync"
)

// State is the machine's lifecycle position
type State int

const (
	Idle State = iota
	Starting
	Active
	EndingPending
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case EndingPending:
		return "ending_pending"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrSessionInProgress rejects entering another level before the
	// current attempt has ended
	ErrSessionInProgress = errors.New("another play attempt is in progress")
	// ErrNoIdentity means the client is not logged in
	ErrNoIdentity = errors.New("no authenticated player")
	// ErrStartAbandoned means the attempt ended before its start completed
	ErrStartAbandoned = errors.New("session start arrived after the attempt ended")
)

// API is the slice of the session service the machine calls
type API interface {
	UserID() string
	StartSession(ctx context.Context, levelID string) (*domain.Session, error)
	EndSession(ctx context.Context, sessionID string, end domain.SessionEnd) (*domain.Session, error)
	CompleteLevel(ctx context.Context, levelID string, completion domain.Completion) (*domain.LevelProgress, error)
	EvaluateAchievements(ctx context.Context) ([]domain.PlayerAchievement, error)
}

// Resolver maps a level reference to its canonical id
type Resolver interface {
	Resolve(ctx context.Context, ref levelresolver.Ref) (string, error)
}

// Synchronizer pushes periodic stats while a session is active
type Synchronizer interface {
	Start(sessionID, userID string, src statsync.Source)
	Stop()
}

// Config bounds the machine's waits
type Config struct {
	// StartWait is how long a termination waits for a pending start
	StartWait time.Duration
	// EndTimeout bounds the whole termination sequence
	EndTimeout time.Duration
	// StartingLives seeds the tracker on each level entry
	StartingLives int64
}

// DefaultConfig returns the machine defaults
func DefaultConfig() Config {
	return Config{
		StartWait:     2 * time.Second,
		EndTimeout:    10 * time.Second,
		StartingLives: 3,
	}
}

// attempt is one level entry. A start that resolves after its attempt was
// given up on finds abandoned set and closes the orphan session.
type attempt struct {
	ref       levelresolver.Ref
	levelID   string
	sessionID string
	enteredAt time.Time
	startedAt time.Time
	startDone chan struct{}
	abandoned bool
}

// Machine is the client-side session controller
type Machine struct {
	api      API
	resolver Resolver
	sync     Synchronizer
	tracker  *Tracker
	config   Config
	logger   *slog.Logger
	now      func() time.Time
	onUnlock func([]domain.PlayerAchievement)

	mu      sync.Mutex
	state   State
	cur     *attempt
	ending  bool
	endDone chan struct{}
}

// Option configures a Machine
type Option func(*Machine)

// WithUnlockHandler receives achievements unlocked by the post-end refresh
func WithUnlockHandler(fn func([]domain.PlayerAchievement)) Option {
	return func(m *Machine) { m.onUnlock = fn }
}

// WithLogger sets the machine's logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

// New creates an idle machine. Zero config fields take their defaults.
func New(api API, resolver Resolver, synchronizer Synchronizer, cfg Config, opts ...Option) *Machine {
	def := DefaultConfig()
	if cfg.StartWait <= 0 {
		cfg.StartWait = def.StartWait
	}
	if cfg.EndTimeout <= 0 {
		cfg.EndTimeout = def.EndTimeout
	}
	if cfg.StartingLives <= 0 {
		cfg.StartingLives = def.StartingLives
	}

	m := &Machine{
		api:      api,
		resolver: resolver,
		sync:     synchronizer,
		tracker:  NewTracker(cfg.StartingLives),
		config:   cfg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tracker returns the counters of the current attempt
func (m *Machine) Tracker() *Tracker {
	return m.tracker
}

// State returns the current lifecycle state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID returns the server session of the current attempt, if any
func (m *Machine) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return ""
	}
	return m.cur.sessionID
}

// EnterLevel opens a session for the level. A repeated entry for the level
// already starting or active is ignored. Start failures leave the machine
// Idle and are returned for logging only; the next entry retries.
func (m *Machine) EnterLevel(ctx context.Context, ref levelresolver.Ref) error {
	m.mu.Lock()
	switch {
	case m.ending:
		m.mu.Unlock()
		return ErrSessionInProgress
	case m.state == Starting || m.state == Active:
		same := m.cur != nil && m.cur.ref == ref
		m.mu.Unlock()
		if same {
			return nil
		}
		return ErrSessionInProgress
	}

	a := &attempt{
		ref:       ref,
		enteredAt: m.now(),
		startDone: make(chan struct{}),
	}
	m.cur = a
	m.state = Starting
	m.tracker.Reset(m.config.StartingLives)
	m.mu.Unlock()

	userID := m.api.UserID()
	if userID == "" {
		return m.startFailed(a, ErrNoIdentity)
	}

	levelID, err := m.resolver.Resolve(ctx, ref)
	if err != nil || levelID == "" {
		if err == nil {
			err = levelresolver.ErrUnresolved
		}
		return m.startFailed(a, fmt.Errorf("resolving level: %w", err))
	}
	m.mu.Lock()
	a.levelID = levelID
	m.mu.Unlock()

	session, err := m.api.StartSession(ctx, levelID)
	if err != nil {
		return m.startFailed(a, fmt.Errorf("starting session: %w", err))
	}

	m.mu.Lock()
	if a.abandoned || m.cur != a {
		m.mu.Unlock()
		m.closeOrphan(session.ID)
		return ErrStartAbandoned
	}
	a.sessionID = session.ID
	a.startedAt = m.now()
	m.state = Active
	// Started under the lock: a termination either is already waiting and
	// takes over, or runs after this and finds the loop to stop.
	if !m.ending {
		m.sync.Start(session.ID, userID, m.tracker)
	}
	close(a.startDone)
	m.mu.Unlock()

	m.logger.Info("session started", "session_id", session.ID, "level_id", levelID)
	return nil
}

func (m *Machine) startFailed(a *attempt, err error) error {
	m.mu.Lock()
	if m.cur == a && m.state == Starting {
		m.state = Idle
	}
	close(a.startDone)
	m.mu.Unlock()

	m.logger.Warn("session start failed", "scene", a.ref.Scene, "error", err)
	return err
}

// closeOrphan ends a server session whose attempt was already given up on
func (m *Machine) closeOrphan(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.EndTimeout)
	defer cancel()

	if _, err := m.api.EndSession(ctx, sessionID, domain.SessionEnd{Status: domain.SessionAbandoned}); err != nil {
		m.logger.Warn("failed to close orphan session", "session_id", sessionID, "error", err)
		return
	}
	m.logger.Info("closed orphan session", "session_id", sessionID)
}

// Complete ends the attempt because the level exit was reached
func (m *Machine) Complete() <-chan struct{} {
	return m.terminate(domain.SessionCompleted)
}

// Abandon ends the attempt on an explicit quit from the menu
func (m *Machine) Abandon() <-chan struct{} {
	return m.terminate(domain.SessionAbandoned)
}

// Teardown ends the attempt because its owner is going away
func (m *Machine) Teardown() <-chan struct{} {
	return m.terminate(domain.SessionAbandoned)
}

// Die records a death and fails the attempt when no lives remain. Outside
// a starting or active attempt it does nothing.
func (m *Machine) Die() <-chan struct{} {
	m.mu.Lock()
	if m.ending {
		done := m.endDone
		m.mu.Unlock()
		return done
	}
	live := m.state == Starting || m.state == Active
	m.mu.Unlock()
	if !live {
		return closedChan()
	}

	if m.tracker.Die() > 0 {
		return closedChan()
	}
	return m.terminate(domain.SessionFailed)
}

// Shutdown tears the attempt down and waits for the termination to settle
func (m *Machine) Shutdown(ctx context.Context) error {
	select {
	case <-m.Teardown():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// terminate runs the termination sequence at most once per attempt. Every
// trigger while it runs gets the same completion channel. The sequence runs
// detached from the caller and is bounded by EndTimeout.
func (m *Machine) terminate(status domain.SessionStatus) <-chan struct{} {
	m.mu.Lock()
	if m.ending {
		done := m.endDone
		m.mu.Unlock()
		return done
	}
	if m.cur == nil || (m.state != Starting && m.state != Active) {
		m.mu.Unlock()
		return closedChan()
	}
	m.ending = true
	m.endDone = make(chan struct{})
	a, done := m.cur, m.endDone
	m.mu.Unlock()

	go m.runTermination(a, status, done)
	return done
}

func (m *Machine) runTermination(a *attempt, status domain.SessionStatus, done chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.EndTimeout)
	defer cancel()

	m.awaitStart(a)

	m.mu.Lock()
	sessionID, levelID := a.sessionID, a.levelID
	since := a.startedAt
	if since.IsZero() {
		since = a.enteredAt
	}
	if sessionID != "" {
		m.state = EndingPending
	}
	m.mu.Unlock()

	m.sync.Stop()

	endApplied := false
	if sessionID != "" {
		if _, err := m.api.EndSession(ctx, sessionID, m.tracker.End(status)); err != nil {
			m.logger.Warn("session end failed", "session_id", sessionID, "status", status, "error", err)
		} else {
			endApplied = true
			m.logger.Info("session ended", "session_id", sessionID, "status", status)
		}
	}

	// a server-side end already folded the completion in
	if status == domain.SessionCompleted && !endApplied && levelID != "" {
		duration := int64(m.now().Sub(since).Seconds())
		if _, err := m.api.CompleteLevel(ctx, levelID, m.tracker.Completion(duration)); err != nil {
			m.logger.Warn("level completion failed", "level_id", levelID, "error", err)
		}
	}

	m.refreshAchievements(ctx)

	m.mu.Lock()
	if m.cur == a {
		m.state = Ended
	}
	m.ending = false
	close(done)
	m.mu.Unlock()
}

// awaitStart gives a pending start up to StartWait to resolve. If it does
// not, the attempt is marked abandoned so a late start closes its session.
func (m *Machine) awaitStart(a *attempt) {
	timer := time.NewTimer(m.config.StartWait)
	defer timer.Stop()

	select {
	case <-a.startDone:
	case <-timer.C:
		m.mu.Lock()
		select {
		case <-a.startDone:
		default:
			a.abandoned = true
			m.logger.Warn("ending before session start resolved", "scene", a.ref.Scene)
		}
		m.mu.Unlock()
	}
}

func (m *Machine) refreshAchievements(ctx context.Context) {
	unlocked, err := m.api.EvaluateAchievements(ctx)
	if err != nil {
		m.logger.Debug("achievement refresh failed", "error", err)
		return
	}
	if len(unlocked) > 0 && m.onUnlock != nil {
		m.onUnlock(unlocked)
	}
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
