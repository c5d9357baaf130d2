package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
	"github.com/ThanhSi1008/tilevania-sub000/internal/store"
)

// PasswordHasher hashes and checks credentials
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenIssuer signs identity tokens
type TokenIssuer interface {
	Issue(userID, username string) (string, error)
}

// AuthResult is returned by register and login
type AuthResult struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

// UserService registers and authenticates accounts
type UserService struct {
	store  store.UserStore
	hasher PasswordHasher
	tokens TokenIssuer
	logger *slog.Logger
	now    Clock
}

// NewUserService creates a new user service
func NewUserService(st store.UserStore, hasher PasswordHasher, tokens TokenIssuer, logger *slog.Logger) *UserService {
	return &UserService{
		store:  st,
		hasher: hasher,
		tokens: tokens,
		logger: orDiscard(logger),
		now:    time.Now,
	}
}

// Register creates the user and its zeroed profile together
func (s *UserService) Register(ctx context.Context, req domain.RegisterRequest) (*AuthResult, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if n := utf8.RuneCountInString(username); n < 3 || n > 32 {
		return nil, domain.ErrInvalidUsername
	}
	if at := strings.Index(email, "@"); at <= 0 || at == len(email)-1 {
		return nil, domain.ErrInvalidEmail
	}
	if len(req.Password) < 6 {
		return nil, domain.ErrWeakPassword
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user, domain.NewProfile(user.ID, now)); err != nil {
		return nil, fmt.Errorf("registering user: %w", err)
	}

	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return &AuthResult{User: user, Token: token}, nil
}

// Login checks credentials and issues a token
func (s *UserService) Login(ctx context.Context, req domain.LoginRequest) (*AuthResult, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: *user, Token: token}, nil
}
