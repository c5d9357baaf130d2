package achievement

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

// Condition codes understood by the default registry
const (
	ConditionEnemiesDefeated = "ENEMIES_DEFEATED"
	ConditionCoinsCollected  = "COINS_COLLECTED"
	ConditionTotalScore      = "TOTAL_SCORE"
	ConditionPlayTime        = "PLAY_TIME"
	ConditionHighestScore    = "HIGHEST_SCORE"
	ConditionTotalDeaths     = "TOTAL_DEATHS"
)

// Metric extracts the profile value a condition compares to its threshold
type Metric func(p domain.Profile) int64

// Registry maps condition codes to metrics. Safe for concurrent use.
type Registry struct {
	metrics map[string]Metric
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// DefaultRegistry returns a registry with every built-in condition
func DefaultRegistry() *Registry {
	r := NewRegistry()
	builtins := map[string]Metric{
		ConditionEnemiesDefeated: func(p domain.Profile) int64 { return p.TotalEnemiesDefeated },
		ConditionCoinsCollected:  func(p domain.Profile) int64 { return p.TotalCoinsCollected },
		ConditionTotalScore:      func(p domain.Profile) int64 { return p.TotalScore },
		ConditionPlayTime:        func(p domain.Profile) int64 { return p.TotalPlayTimeSeconds },
		ConditionHighestScore:    func(p domain.Profile) int64 { return p.HighestScoreAchieved },
		ConditionTotalDeaths:     func(p domain.Profile) int64 { return p.TotalDeaths },
	}
	for code, m := range builtins {
		_ = r.Register(code, m)
	}
	return r
}

// Register adds a condition. Returns an error if the code is taken.
func (r *Registry) Register(code string, m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.metrics[code]; exists {
		return fmt.Errorf("condition %s already registered", code)
	}
	r.metrics[code] = m
	return nil
}

// Get returns the metric for a code
func (r *Registry) Get(code string) (Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.metrics[code]
	return m, ok
}

// Codes returns the registered codes in sorted order
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]string, 0, len(r.metrics))
	for code := range r.metrics {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Met reports whether the profile satisfies the achievement and the value
// it was measured at
func (r *Registry) Met(a domain.Achievement, p domain.Profile) (bool, int64, error) {
	m, ok := r.Get(a.Condition)
	if !ok {
		return false, 0, fmt.Errorf("%w: %s", domain.ErrUnknownCondition, a.Condition)
	}
	v := m(p)
	return v >= a.Threshold, v, nil
}
