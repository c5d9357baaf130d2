package playsession

import (
	"sync"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

// Tracker holds the cumulative counters of the current attempt
type Tracker struct {
	mu      sync.Mutex
	score   int64
	coins   int64
	enemies int64
	deaths  int64
	lives   int64
}

// NewTracker creates a tracker starting with the given lives
func NewTracker(lives int64) *Tracker {
	return &Tracker{lives: lives}
}

// Reset zeroes the counters for a new attempt
func (t *Tracker) Reset(lives int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.score, t.coins, t.enemies, t.deaths = 0, 0, 0, 0
	t.lives = lives
}

func (t *Tracker) AddScore(n int64) {
	t.mu.Lock()
	t.score += n
	t.mu.Unlock()
}

func (t *Tracker) AddCoins(n int64) {
	t.mu.Lock()
	t.coins += n
	t.mu.Unlock()
}

func (t *Tracker) DefeatEnemy() {
	t.mu.Lock()
	t.enemies++
	t.mu.Unlock()
}

// Die records a death and returns the lives left
func (t *Tracker) Die() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deaths++
	if t.lives > 0 {
		t.lives--
	}
	return t.lives
}

// Snapshot returns every counter as a stats update
func (t *Tracker) Snapshot() domain.StatsUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()
	score, coins, enemies, deaths, lives := t.score, t.coins, t.enemies, t.deaths, t.lives
	return domain.StatsUpdate{
		FinalScore:      &score,
		CoinsCollected:  &coins,
		EnemiesDefeated: &enemies,
		DeathCount:      &deaths,
		LivesRemaining:  &lives,
	}
}

// End builds the final payload for status
func (t *Tracker) End(status domain.SessionStatus) domain.SessionEnd {
	t.mu.Lock()
	defer t.mu.Unlock()
	return domain.SessionEnd{
		Status:          status,
		FinalScore:      t.score,
		CoinsCollected:  t.coins,
		EnemiesDefeated: t.enemies,
		DeathCount:      t.deaths,
		LivesRemaining:  t.lives,
	}
}

// Completion builds a level completion taking durationSeconds
func (t *Tracker) Completion(durationSeconds int64) domain.Completion {
	t.mu.Lock()
	defer t.mu.Unlock()
	return domain.Completion{
		Score:    t.score,
		Coins:    t.coins,
		Enemies:  t.enemies,
		Deaths:   t.deaths,
		Duration: durationSeconds,
	}
}
