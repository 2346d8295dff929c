package migrations

import (
	"github.com/boxibox/dunning-engine/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createFailureAnalyticsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_failure_analytics",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.FailureAnalyticsModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_analytics_buckets ON failure_analytics (tenant_id, day_of_week, hour_of_day)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.FailureAnalyticsModel{})
		},
	}
}
