package service

import (
	"context"
	"errors"
	"testing"

	"tipwallet/internal/model"
	"tipwallet/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTipsterID = int64(400)

// creditWallet 给达人钱包预置余额
func creditWallet(t *testing.T, env *testEnv, userID, amount int64) {
	t.Helper()
	walletRepo := repository.NewWalletRepository(env.db)
	ctx := context.Background()

	_, err := walletRepo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, walletRepo.Credit(ctx, env.db, userID, amount))
}

// requestAndSubmit 申请并提交提现，返回进入 PROCESSING 的提现单
func requestAndSubmit(t *testing.T, env *testEnv, amount int64) *model.PayoutRequest {
	t.Helper()
	svc := env.payoutService()
	ctx := context.Background()

	payout, err := svc.Request(ctx, &PayoutRequestInput{TipsterID: testTipsterID, Amount: amount})
	require.NoError(t, err)

	payout, err = svc.Submit(ctx, payout.PayoutNo)
	require.NoError(t, err)
	require.Equal(t, model.PayoutStatusProcessing, payout.Status)
	return payout
}

func TestPayoutRequest(t *testing.T) {
	env := newTestEnv(t)
	creditWallet(t, env, testTipsterID, 2000)
	svc := env.payoutService()
	ctx := context.Background()

	payout, err := svc.Request(ctx, &PayoutRequestInput{TipsterID: testTipsterID, Amount: 1500})
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusRequested, payout.Status)
	assert.Equal(t, int64(1500), payout.Amount)

	// 金额从可用余额原子转入冻结
	wallet, err := env.walletService().GetWallet(ctx, testTipsterID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), wallet.AvailableBalance)
	assert.Equal(t, int64(1500), wallet.PendingPayout)

	// 冻结同时落一条 PENDING 提现流水
	trans, _, err := env.walletService().ListTransactions(ctx, testTipsterID, 1, 10)
	require.NoError(t, err)

	var payoutTrans *model.WalletTransaction
	for _, tr := range trans {
		if tr.Type == model.TransactionTypePayout {
			payoutTrans = tr
		}
	}
	require.NotNil(t, payoutTrans)
	assert.Equal(t, model.TransactionStatusPending, payoutTrans.Status)
	assert.Equal(t, int64(-1500), payoutTrans.Amount)
	assert.Equal(t, payout.PayoutNo, payoutTrans.RefNo)
}

func TestPayoutRequestBelowMinimum(t *testing.T) {
	env := newTestEnv(t)
	creditWallet(t, env, testTipsterID, 2000)
	svc := env.payoutService()

	_, err := svc.Request(context.Background(), &PayoutRequestInput{TipsterID: testTipsterID, Amount: 999})
	assert.ErrorIs(t, err, ErrBelowMinimum)
}

func TestPayoutRequestInsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	creditWallet(t, env, testTipsterID, 500)
	svc := env.payoutService()
	ctx := context.Background()

	_, err := svc.Request(ctx, &PayoutRequestInput{TipsterID: testTipsterID, Amount: 1000})
	assert.ErrorIs(t, err, repository.ErrInsufficientBalance)

	// 申请失败不留下任何痕迹：余额不变、无提现单、无流水
	wallet, err := env.walletService().GetWallet(ctx, testTipsterID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), wallet.AvailableBalance)
	assert.Equal(t, int64(0), wallet.PendingPayout)

	var payoutCount int64
	env.db.Table("payout_request").Where("tipster_id = ?", testTipsterID).Count(&payoutCount)
	assert.Equal(t, int64(0), payoutCount)

	var transCount int64
	env.db.Table("wallet_transaction").Where("user_id = ? AND type = ?", testTipsterID, model.TransactionTypePayout).Count(&transCount)
	assert.Equal(t, int64(0), transCount)
}

func TestPayoutRequestConflict(t *testing.T) {
	env := newTestEnv(t)
	creditWallet(t, env, testTipsterID, 5000)
	svc := env.payoutService()
	ctx := context.Background()

	_, err := svc.Request(ctx, &PayoutRequestInput{TipsterID: testTipsterID, Amount: 1000})
	require.NoError(t, err)

	// 已有进行中申请时再次申请被拒绝
	_, err = svc.Request(ctx, &PayoutRequestInput{TipsterID: testTipsterID, Amount: 1000})
	assert.ErrorIs(t, err, ErrReservationConflict)
}

func TestPayoutSubmit(t *testing.T) {
	env := newTestEnv(t)
	creditWallet(t, env, testTipsterID, 2000)
	payout := requestAndSubmit(t, env, 1500)
	svc := env.payoutService()
	ctx := context.Background()

	require.NotNil(t, payout.ExternalPayoutRef)
	assert.Len(t, env.gw.transfers, 1)

	// 重复提交不会重复发起转账
	again, err := svc.Submit(ctx, payout.PayoutNo)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusProcessing, again.Status)
	assert.Len(t, env.gw.transfers, 1)
}

func TestPayoutSubmitGatewayDown(t *testing.T) {
	env := newTestEnv(t)
	creditWallet(t, env, testTipsterID, 2000)
	svc := env.payoutService()
	ctx := context.Background()

	payout, err := svc.Request(ctx, &PayoutRequestInput{TipsterID: testTipsterID, Amount: 1500})
	require.NoError(t, err)

	// 处理商不可用：提现单留在 REQUESTED，等待下一轮重试
	env.gw.transferErr = errors.New("connection refused")
	_, err = svc.Submit(ctx, payout.PayoutNo)
	require.Error(t, err)

	reloaded, err := svc.Get(ctx, payout.PayoutNo)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusRequested, reloaded.Status)

	env.gw.transferErr = nil
	reloaded, err = svc.Submit(ctx, payout.PayoutNo)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusProcessing, reloaded.Status)
}

func TestPayoutOnConfirmed(t *testing.T) {
	env := newTestEnv(t)
	creditWallet(t, env, testTipsterID, 2000)
	payout := requestAndSubmit(t, env, 1500)
	svc := env.payoutService()
	ctx := context.Background()

	externalRef := *payout.ExternalPayoutRef
	confirmed, err := svc.OnConfirmed(ctx, externalRef)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusCompleted, confirmed.Status)
	assert.NotNil(t, confirmed.CompletedAt)

	// 冻结金额永久扣除，可用余额不变
	wallet, err := env.walletService().GetWallet(ctx, testTipsterID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), wallet.AvailableBalance)
	assert.Equal(t, int64(0), wallet.PendingPayout)
	assert.Equal(t, int64(2000), wallet.TotalEarned)

	// 提现流水补记外部凭证并置为 COMPLETED
	ledgerRepo := repository.NewLedgerRepository(env.db)
	trans, err := ledgerRepo.GetByRefNoAndType(ctx, payout.PayoutNo, model.TransactionTypePayout)
	require.NoError(t, err)
	require.NotNil(t, trans)
	assert.Equal(t, model.TransactionStatusCompleted, trans.Status)
	require.NotNil(t, trans.ExternalID)
	assert.Equal(t, externalRef, *trans.ExternalID)

	// 重复投递幂等，余额不会被扣两次
	confirmed, err = svc.OnConfirmed(ctx, externalRef)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusCompleted, confirmed.Status)

	wallet, err = env.walletService().GetWallet(ctx, testTipsterID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), wallet.AvailableBalance)
	assert.Equal(t, int64(0), wallet.PendingPayout)
}

func TestPayoutOnFailed(t *testing.T) {
	env := newTestEnv(t)
	creditWallet(t, env, testTipsterID, 2000)
	payout := requestAndSubmit(t, env, 1500)
	svc := env.payoutService()
	ctx := context.Background()

	externalRef := *payout.ExternalPayoutRef
	failed, err := svc.OnFailed(ctx, externalRef, "account_closed")
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusFailed, failed.Status)
	assert.Equal(t, "account_closed", failed.FailureReason)

	// 冻结金额整额返还可用余额
	wallet, err := env.walletService().GetWallet(ctx, testTipsterID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), wallet.AvailableBalance)
	assert.Equal(t, int64(0), wallet.PendingPayout)

	// 提现流水置为 FAILED
	ledgerRepo := repository.NewLedgerRepository(env.db)
	trans, err := ledgerRepo.GetByRefNoAndType(ctx, payout.PayoutNo, model.TransactionTypePayout)
	require.NoError(t, err)
	require.NotNil(t, trans)
	assert.Equal(t, model.TransactionStatusFailed, trans.Status)

	// 重复投递幂等
	failed, err = svc.OnFailed(ctx, externalRef, "account_closed")
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusFailed, failed.Status)

	wallet, err = env.walletService().GetWallet(ctx, testTipsterID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), wallet.AvailableBalance)

	// 失败后可以重新发起提现
	_, err = svc.Request(ctx, &PayoutRequestInput{TipsterID: testTipsterID, Amount: 1500})
	require.NoError(t, err)
}

func TestPayoutFailedEventAfterCompleted(t *testing.T) {
	env := newTestEnv(t)
	creditWallet(t, env, testTipsterID, 2000)
	payout := requestAndSubmit(t, env, 1500)
	svc := env.payoutService()
	ctx := context.Background()

	externalRef := *payout.ExternalPayoutRef
	_, err := svc.OnConfirmed(ctx, externalRef)
	require.NoError(t, err)

	// 已完成后迟到的失败事件被忽略
	late, err := svc.OnFailed(ctx, externalRef, "late_failure")
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusCompleted, late.Status)

	wallet, err := env.walletService().GetWallet(ctx, testTipsterID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), wallet.AvailableBalance)
	assert.Equal(t, int64(0), wallet.PendingPayout)
}

func TestPayoutOnConfirmedUnknownRef(t *testing.T) {
	env := newTestEnv(t)
	svc := env.payoutService()

	_, err := svc.OnConfirmed(context.Background(), "po_unknown")
	assert.ErrorIs(t, err, repository.ErrPayoutNotFound)
}
