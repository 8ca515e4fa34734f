package repository

import (
	"context"
	"testing"

	"tipwallet/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyRecord(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, nil, model.IdempotencyScopePayment, "pi_abc"))

	// 同一 scope 下重复登记命中唯一索引
	err := repo.Record(ctx, nil, model.IdempotencyScopePayment, "pi_abc")
	assert.ErrorIs(t, err, ErrDuplicateExternalID)

	// 不同 scope 互不影响：支付与提现的外部ID空间独立
	require.NoError(t, repo.Record(ctx, nil, model.IdempotencyScopePayout, "pi_abc"))

	exists, err := repo.Exists(ctx, model.IdempotencyScopePayment, "pi_abc")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, model.IdempotencyScopePayment, "pi_other")
	require.NoError(t, err)
	assert.False(t, exists)
}
