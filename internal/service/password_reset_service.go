package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/youjaegwon/coinwatch/internal/domain"
	"github.com/youjaegwon/coinwatch/internal/event"
	"github.com/youjaegwon/coinwatch/internal/mail"
	"github.com/youjaegwon/coinwatch/internal/repository"
	"github.com/youjaegwon/coinwatch/internal/security"
)

var ErrResetInvalid = errors.New("invalid or expired reset token")

type PasswordResetService struct {
	userRepo  repository.UserRepository
	resetRepo repository.PasswordResetRepository
	tokens    *TokenService
	mailer    mail.Mailer
	events    event.Publisher
	logger    *slog.Logger
	ttl       time.Duration
	baseURL   string
}

func NewPasswordResetService(userRepo repository.UserRepository, resetRepo repository.PasswordResetRepository, tokens *TokenService, mailer mail.Mailer, events event.Publisher, logger *slog.Logger, ttl time.Duration, baseURL string) *PasswordResetService {
	return &PasswordResetService{
		userRepo:  userRepo,
		resetRepo: resetRepo,
		tokens:    tokens,
		mailer:    mailer,
		events:    events,
		logger:    logger,
		ttl:       ttl,
		baseURL:   baseURL,
	}
}

// Request creates a reset token and mails the link. Unknown emails succeed
// silently so the endpoint does not reveal which addresses are registered.
func (s *PasswordResetService) Request(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	pr := &domain.PasswordReset{
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	if err := s.resetRepo.Create(pr); err != nil {
		return err
	}
	link := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, url.QueryEscape(token))
	return s.mailer.SendPasswordReset(ctx, user.Email, link, s.ttl)
}

// Reset consumes the token, swaps the password hash and kills every active
// refresh token for the user, so stolen sessions die with the old password.
func (s *PasswordResetService) Reset(ctx context.Context, token, newPassword string) error {
	pr, err := s.resetRepo.FindByToken(token)
	if err != nil {
		if errors.Is(err, repository.ErrResetNotFound) {
			return ErrResetInvalid
		}
		return err
	}
	if pr.UsedAt != nil || !pr.ExpiresAt.After(time.Now()) {
		return ErrResetInvalid
	}
	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.resetRepo.Consume(pr.ID, pr.UserID, hash); err != nil {
		if errors.Is(err, repository.ErrResetNotFound) {
			return ErrResetInvalid
		}
		return err
	}
	if _, err := s.tokens.RevokeAll(pr.UserID); err != nil {
		return err
	}
	user, err := s.userRepo.FindByID(pr.UserID)
	if err != nil {
		return err
	}
	if err := s.events.Publish(ctx, event.TopicUserPasswordReset, user.Email, event.UserPasswordResetData{
		UserID: user.ID,
		Email:  user.Email,
	}); err != nil {
		s.logger.WarnContext(ctx, "publish user.password_reset failed", "error", err)
	}
	return nil
}
