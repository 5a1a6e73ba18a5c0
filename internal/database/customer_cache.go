package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Aidin1998/pincex_aml/pkg/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const customerProfileKey = "customer:profile:%s"

// CachedCustomerRepository puts a Redis read-through cache in front of the
// customer table. Cache failures fall back to the database and are never
// surfaced to callers.
type CachedCustomerRepository struct {
	repo   *CustomerRepository
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedCustomerRepository wraps repo. A non-positive ttl defaults to five minutes.
func NewCachedCustomerRepository(repo *CustomerRepository, client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *CachedCustomerRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedCustomerRepository{repo: repo, client: client, ttl: ttl, logger: logger}
}

func (r *CachedCustomerRepository) Get(ctx context.Context, id string) (*models.Customer, error) {
	key := fmt.Sprintf(customerProfileKey, id)

	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var customer models.Customer
		if err := json.Unmarshal(data, &customer); err == nil {
			return &customer, nil
		}
		r.logger.Warn("Dropping unreadable cached customer", zap.String("customer_id", id))
		r.client.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		r.logger.Debug("Customer cache read failed", zap.String("customer_id", id), zap.Error(err))
	}

	customer, err := r.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, customer)
	return customer, nil
}

func (r *CachedCustomerRepository) Create(ctx context.Context, customer *models.Customer) error {
	if err := r.repo.Create(ctx, customer); err != nil {
		return err
	}
	r.store(ctx, fmt.Sprintf(customerProfileKey, customer.ID), customer)
	return nil
}

// List and Count always read the database
func (r *CachedCustomerRepository) List(ctx context.Context, offset, limit int) ([]models.Customer, error) {
	return r.repo.List(ctx, offset, limit)
}

func (r *CachedCustomerRepository) Count(ctx context.Context) (int64, error) {
	return r.repo.Count(ctx)
}

func (r *CachedCustomerRepository) store(ctx context.Context, key string, customer *models.Customer) {
	data, err := json.Marshal(customer)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.logger.Debug("Customer cache write failed", zap.String("key", key), zap.Error(err))
	}
}
