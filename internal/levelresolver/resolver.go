// Package levelresolver maps a scene reference or level ordinal to the
// canonical level id, backed by a TTL cache of the level catalog.
package levelresolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cenkalti/backoff/v4"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

var (
	// ErrUnresolved means no catalog entry matches the reference
	ErrUnresolved = errors.New("level reference not resolved")
	// ErrFetchTimeout means another caller's catalog fetch did not finish in time
	ErrFetchTimeout = errors.New("timed out waiting for level catalog")
)

// Catalog fetches the level catalog
type Catalog interface {
	ListLevels(ctx context.Context) ([]domain.Level, error)
}

// Ref is a client-local level reference. A zero Ordinal is derived from the
// trailing digits of Scene.
type Ref struct {
	Scene   string
	Ordinal int
}

// Config tunes the resolver
type Config struct {
	TTL        time.Duration
	FetchWait  time.Duration
	RetryDelay time.Duration
}

// DefaultConfig returns the resolver defaults
func DefaultConfig() Config {
	return Config{
		TTL:        300 * time.Second,
		FetchWait:  5 * time.Second,
		RetryDelay: 500 * time.Millisecond,
	}
}

// Resolver resolves level references. At most one catalog fetch is in
// flight; concurrent callers wait for it instead of fetching again.
type Resolver struct {
	catalog Catalog
	config  Config
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	byScene   map[string]string
	byOrdinal map[int]string
	fetchedAt time.Time
	inflight  chan struct{}
	lastErr   error
}

// New creates a resolver. Zero config fields take their defaults.
func New(catalog Catalog, cfg Config, logger *slog.Logger) *Resolver {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = def.FetchWait
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		catalog: catalog,
		config:  cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Resolve returns the level id for ref. A failed first attempt is retried
// once after RetryDelay with a forced catalog refresh.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (string, error) {
	attempt := 0
	var id string
	op := func() error {
		attempt++
		var err error
		id, err = r.resolve(ctx, ref, attempt > 1)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.config.RetryDelay), 1),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		r.logger.Warn("level reference unresolved",
			"scene", ref.Scene,
			"ordinal", ref.Ordinal,
			"error", err,
		)
		return "", err
	}
	return id, nil
}

// Invalidate drops the cached catalog
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.fetchedAt = time.Time{}
	r.mu.Unlock()
}

func (r *Resolver) resolve(ctx context.Context, ref Ref, refresh bool) (string, error) {
	if err := r.ensureCatalog(ctx, refresh); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byScene[normalizeScene(ref.Scene)]; ok && ref.Scene != "" {
		return id, nil
	}
	ordinal := ref.Ordinal
	if ordinal == 0 {
		ordinal = trailingNumber(ref.Scene)
	}
	if id, ok := r.byOrdinal[ordinal]; ok && ordinal > 0 {
		return id, nil
	}
	return "", fmt.Errorf("%w: scene %q ordinal %d", ErrUnresolved, ref.Scene, ordinal)
}

// ensureCatalog loads the catalog unless a fresh copy is cached. A caller
// that finds a fetch in flight waits up to FetchWait for it.
func (r *Resolver) ensureCatalog(ctx context.Context, refresh bool) error {
	r.mu.Lock()
	if !refresh && r.freshLocked() {
		r.mu.Unlock()
		return nil
	}
	if wait := r.inflight; wait != nil {
		r.mu.Unlock()
		return r.awaitFetch(ctx, wait)
	}

	done := make(chan struct{})
	r.inflight = done
	r.mu.Unlock()

	levels, err := r.catalog.ListLevels(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight = nil
	r.lastErr = err
	close(done)
	if err != nil {
		return fmt.Errorf("fetching level catalog: %w", err)
	}

	r.byScene = make(map[string]string, len(levels))
	r.byOrdinal = make(map[int]string, len(levels))
	for _, lvl := range levels {
		if lvl.SceneRef != "" {
			r.byScene[normalizeScene(lvl.SceneRef)] = lvl.ID
		}
		r.byOrdinal[lvl.LevelNumber] = lvl.ID
	}
	r.fetchedAt = r.now()
	r.logger.Debug("level catalog cached", "levels", len(levels))
	return nil
}

func (r *Resolver) awaitFetch(ctx context.Context, done <-chan struct{}) error {
	timer := time.NewTimer(r.config.FetchWait)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		return ErrFetchTimeout
	case <-ctx.Done():
		return backoff.Permanent(ctx.Err())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastErr != nil {
		return fmt.Errorf("fetching level catalog: %w", r.lastErr)
	}
	return nil
}

func (r *Resolver) freshLocked() bool {
	return !r.fetchedAt.IsZero() && r.now().Sub(r.fetchedAt) < r.config.TTL
}

func normalizeScene(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// trailingNumber parses the digits ending s, so "Level 3" and "Level3" are 3
func trailingNumber(s string) int {
	s = strings.TrimSpace(s)
	end := len(s)
	start := end
	for start > 0 && unicode.IsDigit(rune(s[start-1])) {
		start--
	}
	if start == end {
		return 0
	}
	n, err := strconv.Atoi(s[start:end])
	if err != nil {
		return 0
	}
	return n
}
