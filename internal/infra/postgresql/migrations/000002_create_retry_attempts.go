package migrations

import (
	"github.com/boxibox/dunning-engine/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createRetryAttemptsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_retry_attempts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.RetryAttemptModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_attempts_due ON retry_attempts (scheduled_at) WHERE status = 'SCHEDULED'`,
				`CREATE INDEX IF NOT EXISTS idx_attempts_customer_status ON retry_attempts (customer_id, status)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_card_update_token ON retry_attempts (card_update_token) WHERE card_update_token IS NOT NULL`,
				// Structural guarantee: one active attempt per invoice chain.
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_one_active_per_invoice ON retry_attempts (invoice_id) WHERE status IN ('PENDING', 'SCHEDULED', 'PROCESSING')`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.RetryAttemptModel{})
		},
	}
}
