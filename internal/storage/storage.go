package storage

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/youjaegwon/coinwatch/internal/domain"
)

// OpenPostgres connects and migrates the schema. TranslateError is on so
// unique-constraint violations surface as gorm.ErrDuplicatedKey regardless of
// driver.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.User{}, &domain.RefreshToken{}, &domain.PasswordReset{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
