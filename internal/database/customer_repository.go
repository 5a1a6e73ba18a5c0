package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aidin1998/pincex_aml/internal/compliance"
	"github.com/Aidin1998/pincex_aml/pkg/models"
	"gorm.io/gorm"
)

// CustomerRepository reads and writes customers
type CustomerRepository struct {
	db *gorm.DB
}

// NewCustomerRepository creates a customer repository
func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// Get returns the customer or an error wrapping compliance.ErrCustomerNotFound.
// Store failures wrap compliance.ErrHistoryUnavailable.
func (r *CustomerRepository) Get(ctx context.Context, id string) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", compliance.ErrCustomerNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: customer lookup: %v", compliance.ErrHistoryUnavailable, err)
	}
	return &customer, nil
}

// Create inserts a customer
func (r *CustomerRepository) Create(ctx context.Context, customer *models.Customer) error {
	if err := r.db.WithContext(ctx).Create(customer).Error; err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// Count returns the number of customers
func (r *CustomerRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Customer{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}
	return count, nil
}

// List returns customers ordered by id
func (r *CustomerRepository) List(ctx context.Context, offset, limit int) ([]models.Customer, error) {
	var customers []models.Customer
	q := r.db.WithContext(ctx).Order("id ASC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&customers).Error; err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return customers, nil
}
