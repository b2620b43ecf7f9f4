package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"todoagent/internal/model"
	"todoagent/internal/repository"
	"todoagent/pkg/util"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already exists")
	ErrInvalidInput       = errors.New("invalid registration")
)

const minPasswordLen = 8

type UserRepository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

type Service struct {
	users     UserRepository
	jwtSecret string
	tokenTTL  time.Duration
	logger    *zap.Logger
}

func NewService(users UserRepository, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{users: users, jwtSecret: jwtSecret, tokenTTL: tokenTTL, logger: logger}
}

// Register creates a user with a random UUID id; the id becomes the JWT sub.
func (s *Service) Register(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		if errors.Is(err, util.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}

	u := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	s.logger.Info("User registered", zap.String("user_id", u.ID))
	return u, nil
}

// Login checks credentials and returns a signed JWT.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if !util.CheckPassword(password, u.PasswordHash) {
		s.logger.Warn("Login failed", zap.String("user_id", u.ID))
		return "", ErrInvalidCredentials
	}
	return s.IssueToken(u.ID)
}

func (s *Service) IssueToken(userID string) (string, error) {
	return util.GenerateJWT(userID, s.jwtSecret, s.tokenTTL)
}
