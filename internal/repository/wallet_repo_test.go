package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletGetOrCreate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	wallet, err := repo.GetOrCreate(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), wallet.UserID)
	assert.Equal(t, int64(0), wallet.AvailableBalance)
	assert.Equal(t, int64(0), wallet.PendingPayout)
	assert.Equal(t, int64(0), wallet.TotalEarned)

	// 重复调用返回同一个钱包，不会重复创建
	again, err := repo.GetOrCreate(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, wallet.ID, again.ID)

	var count int64
	db.Table("wallet").Where("user_id = ?", 100).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestWalletCredit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	_, err := repo.GetOrCreate(ctx, 100)
	require.NoError(t, err)

	require.NoError(t, repo.Credit(ctx, db, 100, 900))
	require.NoError(t, repo.Credit(ctx, db, 100, 100))

	wallet, err := repo.GetByUserID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), wallet.AvailableBalance)
	assert.Equal(t, int64(1000), wallet.TotalEarned)
	assert.Equal(t, 2, wallet.Version)

	// 钱包不存在时入账直接报错，不会静默吞掉资金
	err = repo.Credit(ctx, db, 999, 100)
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestWalletDebit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	_, err := repo.GetOrCreate(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, repo.Credit(ctx, db, 100, 1000))

	wallet, err := repo.GetByUserID(ctx, 100)
	require.NoError(t, err)

	require.NoError(t, repo.Debit(ctx, db, 100, 300, wallet.Version))

	wallet, err = repo.GetByUserID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(700), wallet.AvailableBalance)
	// 累计收入不受出账影响
	assert.Equal(t, int64(1000), wallet.TotalEarned)
}

func TestWalletDebitInsufficientBalance(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	_, err := repo.GetOrCreate(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, repo.Credit(ctx, db, 100, 500))

	wallet, err := repo.GetByUserID(ctx, 100)
	require.NoError(t, err)

	err = repo.Debit(ctx, db, 100, 1000, wallet.Version)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// 扣款失败后余额保持不变
	wallet, err = repo.GetByUserID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(500), wallet.AvailableBalance)
}

func TestWalletDebitOptimisticLock(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	_, err := repo.GetOrCreate(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, repo.Credit(ctx, db, 100, 1000))

	wallet, err := repo.GetByUserID(ctx, 100)
	require.NoError(t, err)

	// 用过期的 version 扣款，模拟并发写冲突
	err = repo.Debit(ctx, db, 100, 300, wallet.Version-1)
	assert.ErrorIs(t, err, ErrOptimisticLock)
}

func TestWalletReserveAndRelease(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	_, err := repo.GetOrCreate(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, repo.Credit(ctx, db, 100, 1000))

	// 冻结 600：可用 -> 400，冻结 -> 600
	require.NoError(t, repo.Reserve(ctx, db, 100, 600))
	wallet, err := repo.GetByUserID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(400), wallet.AvailableBalance)
	assert.Equal(t, int64(600), wallet.PendingPayout)

	// 提现失败：冻结整额返还可用余额
	require.NoError(t, repo.ReleaseReservation(ctx, db, 100, 600, false))
	wallet, err = repo.GetByUserID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), wallet.AvailableBalance)
	assert.Equal(t, int64(0), wallet.PendingPayout)

	// 提现成功：冻结金额永久扣除
	require.NoError(t, repo.Reserve(ctx, db, 100, 600))
	require.NoError(t, repo.ReleaseReservation(ctx, db, 100, 600, true))
	wallet, err = repo.GetByUserID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(400), wallet.AvailableBalance)
	assert.Equal(t, int64(0), wallet.PendingPayout)
	assert.Equal(t, int64(1000), wallet.TotalEarned)
}

func TestWalletReserveInsufficientBalance(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	_, err := repo.GetOrCreate(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, repo.Credit(ctx, db, 100, 500))

	err = repo.Reserve(ctx, db, 100, 1000)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// 冻结失败不产生任何变更
	wallet, err := repo.GetByUserID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(500), wallet.AvailableBalance)
	assert.Equal(t, int64(0), wallet.PendingPayout)
}
