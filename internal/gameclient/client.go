// Package gameclient is the game's HTTP client for the session service.
package gameclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

// APIError is a non-2xx answer from the service. It unwraps to the domain
// error kind matching its status so callers can use errors.Is.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d message=%s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case fasthttp.StatusBadRequest:
		return domain.ErrValidation
	case fasthttp.StatusUnauthorized:
		return domain.ErrAuthentication
	case fasthttp.StatusForbidden:
		return domain.ErrAuthorization
	case fasthttp.StatusNotFound:
		return domain.ErrNotFound
	case fasthttp.StatusConflict:
		return domain.ErrConflict
	default:
		return domain.ErrInternal
	}
}

// ErrNotAuthenticated is returned by calls that need a token before one is set
var ErrNotAuthenticated = fmt.Errorf("%w: client has no token", domain.ErrAuthentication)

// Identity is the authenticated account of the client
type Identity struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Client talks to the session service over HTTP
type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
	adminKey       string

	mu       sync.RWMutex
	identity Identity
}

const adminPrefix = "/api/v1/admin/"

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

// WithRetry sets the attempts made by idempotent reads
func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithAdminKey sets the operator key sent on admin routes only
func WithAdminKey(key string) Option {
	return func(c *Client) { c.adminKey = key }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Identity returns the current account, empty before Register or Login
func (c *Client) Identity() Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// UserID returns the authenticated user id
func (c *Client) UserID() string {
	return c.Identity().User.ID
}

func (c *Client) setIdentity(id Identity) {
	c.mu.Lock()
	c.identity = id
	c.mu.Unlock()
}

func (c *Client) Register(ctx context.Context, username, email, password string) (*Identity, error) {
	req := domain.RegisterRequest{Username: username, Email: email, Password: password}
	var id Identity
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/v1/auth/register", req, &id, false); err != nil {
		return nil, err
	}
	c.setIdentity(id)
	return &id, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (*Identity, error) {
	req := domain.LoginRequest{Username: username, Password: password}
	var id Identity
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/v1/auth/login", req, &id, false); err != nil {
		return nil, err
	}
	c.setIdentity(id)
	return &id, nil
}

// ListLevels fetches the level catalog
func (c *Client) ListLevels(ctx context.Context) ([]domain.Level, error) {
	var levels []domain.Level
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/v1/levels", nil, &levels, true); err != nil {
		return nil, err
	}
	return levels, nil
}

func (c *Client) StartSession(ctx context.Context, levelID string) (*domain.Session, error) {
	var s domain.Session
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/v1/sessions", domain.StartSessionRequest{LevelID: levelID}, &s, false); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) UpdateSession(ctx context.Context, sessionID string, stats domain.StatsUpdate) (*domain.Session, error) {
	var s domain.Session
	if err := c.doJSON(ctx, fasthttp.MethodPatch, "/api/v1/sessions/"+url.PathEscape(sessionID), stats, &s, false); err != nil {
		return nil, err
	}
	return &s, nil
}

// PushStats sends one periodic update; the reply is discarded
func (c *Client) PushStats(ctx context.Context, msg domain.StatsMessage) error {
	return c.doJSON(ctx, fasthttp.MethodPatch, "/api/v1/sessions/"+url.PathEscape(msg.SessionID), msg.Stats, nil, false)
}

func (c *Client) EndSession(ctx context.Context, sessionID string, end domain.SessionEnd) (*domain.Session, error) {
	var s domain.Session
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/end", end, &s, false); err != nil {
		return nil, err
	}
	return &s, nil
}

// CompleteLevel records a completion for the authenticated user
func (c *Client) CompleteLevel(ctx context.Context, levelID string, completion domain.Completion) (*domain.LevelProgress, error) {
	path, err := c.userPath("/progress/" + url.PathEscape(levelID) + "/complete")
	if err != nil {
		return nil, err
	}
	var p domain.LevelProgress
	if err := c.doJSON(ctx, fasthttp.MethodPost, path, completion, &p, false); err != nil {
		return nil, err
	}
	return &p, nil
}

// EvaluateAchievements returns the achievements unlocked by this call
func (c *Client) EvaluateAchievements(ctx context.Context) ([]domain.PlayerAchievement, error) {
	path, err := c.userPath("/achievements/evaluate")
	if err != nil {
		return nil, err
	}
	var unlocked []domain.PlayerAchievement
	if err := c.doJSON(ctx, fasthttp.MethodPost, path, nil, &unlocked, false); err != nil {
		return nil, err
	}
	return unlocked, nil
}

func (c *Client) Profile(ctx context.Context) (*domain.Profile, error) {
	path, err := c.userPath("/profile")
	if err != nil {
		return nil, err
	}
	var p domain.Profile
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &p, true); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Leaderboard(ctx context.Context, period domain.Period, limit int) ([]domain.LeaderboardEntry, error) {
	q := url.Values{}
	q.Set("period", string(period))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var entries []domain.LeaderboardEntry
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/v1/leaderboard?"+q.Encode(), nil, &entries, true); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) RecomputeLeaderboard(ctx context.Context) error {
	return c.doJSON(ctx, fasthttp.MethodPost, adminPrefix+"leaderboard/recompute", nil, nil, false)
}

func (c *Client) userPath(suffix string) (string, error) {
	userID := c.UserID()
	if userID == "" {
		return "", ErrNotAuthenticated
	}
	return "/api/v1/users/" + url.PathEscape(userID) + suffix, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if token := c.Identity().Token; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.adminKey != "" && strings.HasPrefix(path, adminPrefix) {
		req.Header.Set("X-Admin-Key", c.adminKey)
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		var env envelope
		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			msg := truncate(string(resp.Body()), 512)
			if json.Unmarshal(resp.Body(), &env) == nil && env.Error != "" {
				msg = env.Error
			}
			lastErr = &APIError{Status: status, Message: msg}
			if attempt == attempts || !shouldRetryStatus(status) {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), &env); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if err := json.Unmarshal(env.Data, out); err != nil {
				return fmt.Errorf("decode response data: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
