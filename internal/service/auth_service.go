package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/youjaegwon/coinwatch/internal/domain"
	"github.com/youjaegwon/coinwatch/internal/event"
	"github.com/youjaegwon/coinwatch/internal/repository"
	"github.com/youjaegwon/coinwatch/internal/security"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         *domain.User
}

// AuthService maps credentials to token pairs. All refresh-token state lives
// in TokenService; access tokens are stateless and never stored.
type AuthService struct {
	userRepo  repository.UserRepository
	tokens    *TokenService
	jwtMgr    *security.JWTManager
	events    event.Publisher
	logger    *slog.Logger
	accessTTL time.Duration
}

func NewAuthService(userRepo repository.UserRepository, tokens *TokenService, jwtMgr *security.JWTManager, events event.Publisher, logger *slog.Logger, accessTTL time.Duration) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		tokens:    tokens,
		jwtMgr:    jwtMgr,
		events:    events,
		logger:    logger,
		accessTTL: accessTTL,
	}
}

func (s *AuthService) Register(ctx context.Context, email, name, password string) (*domain.User, error) {
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Email:        repository.NormalizeEmail(email),
		Name:         name,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}
	if err := s.events.Publish(ctx, event.TopicUserRegistered, user.Email, event.UserRegisteredData{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
	}); err != nil {
		s.logger.WarnContext(ctx, "publish user.registered failed", "error", err)
	}
	return user, nil
}

// Login verifies credentials and starts a new refresh chain. The generic
// ErrInvalidCredentials covers both unknown email and bad password so the
// endpoint cannot be used as an account oracle.
func (s *AuthService) Login(ctx context.Context, email, password string, meta TokenMeta) (*LoginResult, error) {
	user, err := s.userRepo.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !security.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.mintPair(user, meta)
}

// Refresh rotates the presented refresh token and issues a fresh access
// token. No access token is required here; the refresh token is the sole
// credential for this operation.
func (s *AuthService) Refresh(ctx context.Context, rawToken string, meta TokenMeta) (*LoginResult, error) {
	newRaw, userID, err := s.tokens.Rotate(rawToken, meta)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}
	access, err := s.jwtMgr.SignAccessToken(user.ID, user.Email, user.Role, s.accessTTL)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: access, RefreshToken: newRaw, User: user}, nil
}

func (s *AuthService) Logout(rawToken string) error {
	return s.tokens.Revoke(rawToken)
}

func (s *AuthService) LogoutAll(userID uint) (int64, error) {
	return s.tokens.RevokeAll(userID)
}

func (s *AuthService) GetUser(id uint) (*domain.User, error) {
	return s.userRepo.FindByID(id)
}

func (s *AuthService) mintPair(user *domain.User, meta TokenMeta) (*LoginResult, error) {
	access, err := s.jwtMgr.SignAccessToken(user.ID, user.Email, user.Role, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Issue(user.ID, meta)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: access, RefreshToken: refresh, User: user}, nil
}
