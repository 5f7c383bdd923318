package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gearline/crm/pkg/models"
)

// Open connects to Postgres and tunes the underlying pool.
func Open(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	log.Println("✅ Database connection established")
	return db, nil
}

// Migrate runs schema auto-migration and seeds the name counter row.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	// The counter table holds exactly one row.
	var count int64
	if err := db.Model(&models.CustomerNameCounter{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check name counter: %w", err)
	}
	if count == 0 {
		if err := db.Create(&models.CustomerNameCounter{LastValue: 0}).Error; err != nil {
			return fmt.Errorf("failed to seed name counter: %w", err)
		}
	}

	log.Println("✅ Database schema migrated")
	return nil
}
