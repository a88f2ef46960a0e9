package repository

import (
	"context"
	"errors"
	"time"

	"github.com/youjaegwon/coinwatch/internal/domain"
	"github.com/youjaegwon/coinwatch/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrTokenRevoked  = errors.New("refresh token already revoked")
)

// TokenRepository is the ledger of refresh-token records. It is the only
// component that writes refresh_tokens rows.
type TokenRepository interface {
	Create(t *domain.RefreshToken) error
	FindByHash(hash string) (*domain.RefreshToken, error)
	FindByID(id uint) (*domain.RefreshToken, error)
	Rotate(oldID uint, replacement *domain.RefreshToken) (*domain.RefreshToken, error)
	RevokeByHash(hash string) error
	RevokeAllForUser(userID uint) (int64, error)
	ListActiveForUser(userID uint) ([]domain.RefreshToken, error)
	DeleteExpired(olderThan time.Time) (int64, error)
}

type GormTokenRepository struct{ db *gorm.DB }

func NewTokenRepository(db *gorm.DB) TokenRepository { return &GormTokenRepository{db: db} }

func (r *GormTokenRepository) Create(t *domain.RefreshToken) error {
	err := r.db.Create(t).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "token", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "token", "create", "success")
	return nil
}

func (r *GormTokenRepository) FindByHash(hash string) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.Where("token_hash = ?", hash).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "token", "find_by_hash", "not_found")
			return nil, ErrTokenNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "token", "find_by_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "token", "find_by_hash", "success")
	return &t, nil
}

func (r *GormTokenRepository) FindByID(id uint) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.First(&t, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Rotate revokes the presented record and inserts its replacement in one
// transaction. The revoke is a conditional update keyed on revoked_at IS NULL;
// zero rows affected means another request rotated the same token first, and
// the whole transaction rolls back with ErrTokenRevoked. This is what keeps
// two concurrent rotations of one token from both succeeding.
func (r *GormTokenRepository) Rotate(oldID uint, replacement *domain.RefreshToken) (*domain.RefreshToken, error) {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&domain.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", oldID).
			Update("revoked_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTokenRevoked
		}
		if err := tx.Create(replacement).Error; err != nil {
			return err
		}
		return tx.Model(&domain.RefreshToken{}).
			Where("id = ?", oldID).
			Update("replaced_by", replacement.ID).Error
	})
	if err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			observability.RecordRepositoryOperation(context.Background(), "token", "rotate", "conflict")
		} else {
			observability.RecordRepositoryOperation(context.Background(), "token", "rotate", "error")
		}
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "token", "rotate", "success")
	return replacement, nil
}

// RevokeByHash is idempotent: revoking an unknown or already-revoked token is
// not an error, so logout cannot be used to probe for token existence.
func (r *GormTokenRepository) RevokeByHash(hash string) error {
	err := r.db.Model(&domain.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hash).
		Update("revoked_at", time.Now().UTC()).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "token", "revoke_by_hash", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "token", "revoke_by_hash", "success")
	return nil
}

func (r *GormTokenRepository) RevokeAllForUser(userID uint) (int64, error) {
	res := r.db.Model(&domain.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", time.Now().UTC())
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "token", "revoke_all_for_user", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "token", "revoke_all_for_user", "success")
	return res.RowsAffected, nil
}

func (r *GormTokenRepository) ListActiveForUser(userID uint) ([]domain.RefreshToken, error) {
	var tokens []domain.RefreshToken
	err := r.db.Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, time.Now()).
		Order("created_at DESC").
		Find(&tokens).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "token", "list_active_for_user", "error")
		return tokens, err
	}
	observability.RecordRepositoryOperation(context.Background(), "token", "list_active_for_user", "success")
	return tokens, nil
}

// DeleteExpired is storage hygiene only; expiry is always evaluated at read
// time, never by this sweep.
func (r *GormTokenRepository) DeleteExpired(olderThan time.Time) (int64, error) {
	res := r.db.Where("expires_at <= ?", olderThan).Delete(&domain.RefreshToken{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "token", "delete_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "token", "delete_expired", "success")
	return res.RowsAffected, nil
}
