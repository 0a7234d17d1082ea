package database

import (
	"fmt"

	"gorm.io/gorm"
)

// RunMigrations executes all database migrations
func RunMigrations(db *gorm.DB) error {
	// Create indexes for better performance
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// createIndexes creates database indexes
func createIndexes(db *gorm.DB) error {
	// Index for rulings pending extraction
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_rulings_extraction
		ON tracked_rulings(tracked_case_id, extracted_at)
	`).Error; err != nil {
		return err
	}

	// Index for triggered rulings awaiting analysis
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_rulings_analysis
		ON tracked_rulings(triggered, analyzed)
	`).Error; err != nil {
		return err
	}

	// Index for dedup log by case and operation
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_dedup_log_case_op
		ON deduplication_logs(tracked_case_id, operation)
	`).Error; err != nil {
		return err
	}

	return nil
}
