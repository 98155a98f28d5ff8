package user

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sailsdock/internal/model"
	"sailsdock/internal/repository"
	"sailsdock/internal/util"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type Store interface {
	Create(ctx context.Context, u *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

type Service struct {
	users     Store
	jwtSecret string
	logger    *zap.Logger
}

func NewService(users Store, jwtSecret string, logger *zap.Logger) *Service {
	return &Service{users: users, jwtSecret: jwtSecret, logger: logger}
}

// Register creates a user in a fresh workspace and returns a session token.
func (s *Service) Register(ctx context.Context, name, email, password string) (*model.User, string, error) {
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, "", ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, "", err
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	u := &model.User{
		WorkspaceID:  uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, "", err
	}

	token, err := util.GenerateJWT(u.ID, u.WorkspaceID, s.jwtSecret)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID))
	return u, token, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if !util.CheckPassword(u.PasswordHash, password) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := util.GenerateJWT(u.ID, u.WorkspaceID, s.jwtSecret)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}
