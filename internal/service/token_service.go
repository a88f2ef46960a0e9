package service

import (
	"errors"
	"time"

	"github.com/youjaegwon/coinwatch/internal/domain"
	"github.com/youjaegwon/coinwatch/internal/repository"
	"github.com/youjaegwon/coinwatch/internal/security"
)

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrRefreshTokenRevoked is the replay signal: the presented token was
	// already rotated or revoked, so either a concurrent rotation lost the
	// race or the token was stolen and used twice. Callers must force a full
	// re-authentication either way.
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")
)

// TokenMeta is optional binding metadata recorded with each ledger row. It is
// audit data, not a security boundary; nothing enforces a match on rotation.
type TokenMeta struct {
	UserAgent string
	IP        string
}

// TokenService owns the refresh-token lifecycle: issue, single-use rotation,
// revocation. A chain starts at login and each rotation atomically revokes
// the presented record while inserting its replacement, so at any instant at
// most one record per chain is active and a raw token is usable exactly once.
type TokenService struct {
	tokenRepo  repository.TokenRepository
	pepper     string
	refreshTTL time.Duration
}

func NewTokenService(tokenRepo repository.TokenRepository, pepper string, refreshTTL time.Duration) *TokenService {
	return &TokenService{tokenRepo: tokenRepo, pepper: pepper, refreshTTL: refreshTTL}
}

// Issue mints a new chain head for the user. The returned raw token is the
// only copy that will ever exist; the ledger keeps its hash.
func (s *TokenService) Issue(userID uint, meta TokenMeta) (string, error) {
	raw, err := security.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	rec := &domain.RefreshToken{
		UserID:    userID,
		TokenHash: security.HashRefreshToken(raw, s.pepper),
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		ExpiresAt: time.Now().Add(s.refreshTTL),
	}
	if err := s.tokenRepo.Create(rec); err != nil {
		return "", err
	}
	return raw, nil
}

// Rotate exchanges a live refresh token for a fresh one. Failure order is
// fixed: unknown hash, then expiry, then revocation, so an expired record
// reports Expired even after it was revoked. On success the presented token
// is dead for everyone, including the caller that just used it.
func (s *TokenService) Rotate(raw string, meta TokenMeta) (string, uint, error) {
	hash := security.HashRefreshToken(raw, s.pepper)
	rec, err := s.tokenRepo.FindByHash(hash)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return "", 0, ErrInvalidRefreshToken
		}
		return "", 0, err
	}
	if !rec.ExpiresAt.After(time.Now()) {
		return "", 0, ErrRefreshTokenExpired
	}
	if rec.RevokedAt != nil {
		return "", 0, ErrRefreshTokenRevoked
	}

	newRaw, err := security.NewOpaqueToken()
	if err != nil {
		return "", 0, err
	}
	replacement := &domain.RefreshToken{
		UserID:    rec.UserID,
		TokenHash: security.HashRefreshToken(newRaw, s.pepper),
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		ExpiresAt: time.Now().Add(s.refreshTTL),
	}
	if _, err := s.tokenRepo.Rotate(rec.ID, replacement); err != nil {
		if errors.Is(err, repository.ErrTokenRevoked) {
			// Lost the race against a concurrent rotation of the same token.
			return "", 0, ErrRefreshTokenRevoked
		}
		return "", 0, err
	}
	return newRaw, rec.UserID, nil
}

// Revoke is idempotent and leaks nothing: unknown and already-revoked tokens
// succeed silently.
func (s *TokenService) Revoke(raw string) error {
	return s.tokenRepo.RevokeByHash(security.HashRefreshToken(raw, s.pepper))
}

func (s *TokenService) RevokeAll(userID uint) (int64, error) {
	return s.tokenRepo.RevokeAllForUser(userID)
}
