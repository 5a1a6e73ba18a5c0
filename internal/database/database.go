// Package database opens the primary store and holds the customer and
// transaction repositories used by the evaluation pipeline.
package database

import (
	"fmt"

	"github.com/Aidin1998/pincex_aml/pkg/models"
	"gorm.io/gorm"
)

// AutoMigrate creates the customer and transaction tables plus any extra
// models the caller owns (ledger, graph edges).
func AutoMigrate(db *gorm.DB, extra ...interface{}) error {
	tables := append([]interface{}{&models.Customer{}, &models.Transaction{}}, extra...)
	if err := db.AutoMigrate(tables...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
