package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Aidin1998/pincex_aml/internal/compliance"
	"github.com/Aidin1998/pincex_aml/pkg/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCachedCustomerRepository_FallsBackWhenRedisIsDown(t *testing.T) {
	db, err := NewSQLiteDB("")
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	// Nothing listens on port 1, every cache call fails fast.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	repo := NewCachedCustomerRepository(NewCustomerRepository(db), client, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Customer{ID: "cust-9", FullName: "Max Mustermann", AccountNumber: "ACC-0009"}))

	got, err := repo.Get(ctx, "cust-9")
	require.NoError(t, err)
	assert.Equal(t, "Max Mustermann", got.FullName)

	_, err = repo.Get(ctx, "nobody")
	assert.True(t, errors.Is(err, compliance.ErrCustomerNotFound))

	list, err := repo.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
