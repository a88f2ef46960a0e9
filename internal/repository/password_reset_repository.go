package repository

import (
	"context"
	"errors"
	"time"

	"github.com/youjaegwon/coinwatch/internal/domain"
	"github.com/youjaegwon/coinwatch/internal/observability"

	"gorm.io/gorm"
)

var ErrResetNotFound = errors.New("password reset not found")

type PasswordResetRepository interface {
	Create(pr *domain.PasswordReset) error
	FindByToken(token string) (*domain.PasswordReset, error)
	// Consume marks the token used and swaps the owning user's password hash
	// in one transaction.
	Consume(id uint, userID uint, newHash string) error
}

type GormPasswordResetRepository struct{ db *gorm.DB }

func NewPasswordResetRepository(db *gorm.DB) PasswordResetRepository {
	return &GormPasswordResetRepository{db: db}
}

func (r *GormPasswordResetRepository) Create(pr *domain.PasswordReset) error {
	err := r.db.Create(pr).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "password_reset", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "password_reset", "create", "success")
	return nil
}

func (r *GormPasswordResetRepository) FindByToken(token string) (*domain.PasswordReset, error) {
	var pr domain.PasswordReset
	err := r.db.Where("token = ?", token).First(&pr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "password_reset", "find_by_token", "not_found")
			return nil, ErrResetNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "password_reset", "find_by_token", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "password_reset", "find_by_token", "success")
	return &pr, nil
}

func (r *GormPasswordResetRepository) Consume(id uint, userID uint, newHash string) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.PasswordReset{}).
			Where("id = ? AND used_at IS NULL", id).
			Update("used_at", time.Now().UTC())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrResetNotFound
		}
		return tx.Model(&domain.User{}).
			Where("id = ?", userID).
			Update("password_hash", newHash).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "password_reset", "consume", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "password_reset", "consume", "success")
	return nil
}
