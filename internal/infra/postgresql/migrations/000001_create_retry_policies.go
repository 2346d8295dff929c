package migrations

import (
	"github.com/boxibox/dunning-engine/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createRetryPoliciesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_retry_policies",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.RetryPolicyModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.RetryPolicyModel{})
		},
	}
}
