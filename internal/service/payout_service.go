package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tipwallet/internal/config"
	"tipwallet/internal/gateway"
	"tipwallet/internal/infrastructure/lock"
	"tipwallet/internal/model"
	"tipwallet/internal/repository"
	"tipwallet/pkg/idgen"
	"tipwallet/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrBelowMinimum        = errors.New("低于最小提现金额")
	ErrReservationConflict = errors.New("已有进行中的提现申请")

	// errAlreadyApplied 事务内部哨兵：提现回调已入账，回滚事务并返回现有结果
	errAlreadyApplied = errors.New("回调已处理")
)

// PayoutService 提现流程
// 状态机：REQUESTED -> PROCESSING -> COMPLETED / FAILED
// 申请时金额从可用余额原子转入冻结；确认后冻结扣除，失败则整额返还，
// 资金永远不会停留在"冻结且无下文"的状态
type PayoutService struct {
	db              *gorm.DB
	redisClient     *redis.Client
	cfg             *config.Config
	gw              gateway.Gateway
	payoutRepo      *repository.PayoutRepository
	walletRepo      *repository.WalletRepository
	ledgerRepo      *repository.LedgerRepository
	idempotencyRepo *repository.IdempotencyRepository
	outboxRepo      *repository.OutboxRepository
}

func NewPayoutService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, gw gateway.Gateway) *PayoutService {
	return &PayoutService{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		gw:              gw,
		payoutRepo:      repository.NewPayoutRepository(db),
		walletRepo:      repository.NewWalletRepository(db),
		ledgerRepo:      repository.NewLedgerRepository(db),
		idempotencyRepo: repository.NewIdempotencyRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

type PayoutRequestInput struct {
	TipsterID int64 `json:"tipster_id" binding:"required"`
	Amount    int64 `json:"amount" binding:"required,gt=0"`
}

// Request 发起提现申请
// 校验最小提现金额，冻结资金并落 REQUESTED 提现单；
// 同一达人并发申请由分布式锁串行化，进行中申请存在时直接拒绝
func (s *PayoutService) Request(ctx context.Context, req *PayoutRequestInput) (*model.PayoutRequest, error) {
	if req.Amount < s.cfg.Business.MinimumPayoutAmount {
		return nil, ErrBelowMinimum
	}

	payoutLock := lock.NewPayoutLock(s.redisClient, req.TipsterID, uuid.NewString())
	err := payoutLock.Lock(ctx, 100*time.Millisecond, 30)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer payoutLock.Unlock(ctx)

	active, err := s.payoutRepo.GetActiveByTipsterID(ctx, req.TipsterID)
	if err != nil {
		return nil, fmt.Errorf("查询进行中提现失败: %w", err)
	}
	if active != nil {
		return nil, ErrReservationConflict
	}

	if _, err = s.walletRepo.GetOrCreate(ctx, req.TipsterID); err != nil {
		return nil, fmt.Errorf("获取钱包失败: %w", err)
	}

	payout := &model.PayoutRequest{
		PayoutNo:  idgen.GeneratePayoutNo(),
		TipsterID: req.TipsterID,
		Amount:    req.Amount,
		Status:    model.PayoutStatusRequested,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 冻结资金：可用余额不足时整个申请失败，不产生任何变更
		if err := s.walletRepo.Reserve(ctx, tx, req.TipsterID, req.Amount); err != nil {
			return err
		}

		if err := s.payoutRepo.Create(ctx, tx, payout); err != nil {
			return fmt.Errorf("创建提现单失败: %w", err)
		}

		wallet, err := s.walletRepo.GetByUserIDTx(ctx, tx, req.TipsterID)
		if err != nil {
			return fmt.Errorf("读取钱包失败: %w", err)
		}

		trans := &model.WalletTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        req.TipsterID,
			RefNo:         payout.PayoutNo,
			Amount:        -req.Amount,
			Type:          model.TransactionTypePayout,
			Status:        model.TransactionStatusPending,
			BalanceBefore: wallet.AvailableBalance + req.Amount,
			BalanceAfter:  wallet.AvailableBalance,
			Remark:        fmt.Sprintf("提现冻结-%s", payout.PayoutNo),
		}
		if err := s.ledgerRepo.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("记录提现流水失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	logger.Infof("提现申请已创建: payoutNo=%s, tipsterID=%d, amount=%d",
		payout.PayoutNo, req.TipsterID, req.Amount)

	return payout, nil
}

// Get 查询提现单
func (s *PayoutService) Get(ctx context.Context, payoutNo string) (*model.PayoutRequest, error) {
	return s.payoutRepo.GetByPayoutNo(ctx, payoutNo)
}

// Submit 把 REQUESTED 提现单提交到处理商发起转账
// 幂等：转账以提现单号为幂等键，崩溃后重试不会重复转账；
// 已进入 PROCESSING 及之后状态的提现单直接返回当前状态
func (s *PayoutService) Submit(ctx context.Context, payoutNo string) (*model.PayoutRequest, error) {
	payout, err := s.payoutRepo.GetByPayoutNo(ctx, payoutNo)
	if err != nil {
		return nil, err
	}

	if payout.Status != model.PayoutStatusRequested {
		return payout, nil
	}

	externalRef, err := s.gw.CreateTransfer(ctx, strconv.FormatInt(payout.TipsterID, 10), payout.Amount, payout.PayoutNo)
	if err != nil {
		return nil, fmt.Errorf("发起处理商转账失败: %w", err)
	}

	err = s.payoutRepo.MarkProcessing(ctx, payout.PayoutNo, externalRef)
	if err != nil {
		if errors.Is(err, repository.ErrPayoutStatusInvalid) {
			// 并发提交被抢先，返回最新状态
			return s.payoutRepo.GetByPayoutNo(ctx, payoutNo)
		}
		return nil, err
	}

	logger.Infof("提现已提交处理商: payoutNo=%s, externalRef=%s", payout.PayoutNo, externalRef)

	return s.payoutRepo.GetByPayoutNo(ctx, payoutNo)
}

// OnConfirmed 处理商转账成功回调
// 幂等：按外部转账凭证去重；冻结金额就此扣除（资金已离开平台），
// 累计收入不变（入账时已统计）
func (s *PayoutService) OnConfirmed(ctx context.Context, externalRef string) (*model.PayoutRequest, error) {
	payout, err := s.payoutRepo.GetByExternalRef(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, repository.ErrPayoutNotFound
	}

	if payout.Status == model.PayoutStatusCompleted {
		return payout, nil // 重复投递，幂等
	}

	webhookLock := lock.NewPayoutWebhookLock(s.redisClient, externalRef, uuid.NewString())
	err = webhookLock.Lock(ctx, 100*time.Millisecond, 30)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer webhookLock.Unlock(ctx)

	payout, err = s.payoutRepo.GetByPayoutNo(ctx, payout.PayoutNo)
	if err != nil {
		return nil, err
	}
	if payout.Status == model.PayoutStatusCompleted {
		return payout, nil
	}

	trans, err := s.ledgerRepo.GetByRefNoAndType(ctx, payout.PayoutNo, model.TransactionTypePayout)
	if err != nil {
		return nil, fmt.Errorf("查询提现流水失败: %w", err)
	}
	if trans == nil {
		return nil, repository.ErrTransactionStatusInvalid
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.idempotencyRepo.Record(ctx, tx, model.IdempotencyScopePayout, externalRef); err != nil {
			if errors.Is(err, repository.ErrDuplicateExternalID) {
				return errAlreadyApplied
			}
			return fmt.Errorf("登记幂等键失败: %w", err)
		}

		// 提现成功：冻结金额永久扣除
		if err := s.walletRepo.ReleaseReservation(ctx, tx, payout.TipsterID, payout.Amount, true); err != nil {
			return fmt.Errorf("释放冻结失败: %w", err)
		}

		if err := s.ledgerRepo.Complete(ctx, tx, trans.TransactionNo, &externalRef); err != nil {
			return fmt.Errorf("完成提现流水失败: %w", err)
		}

		if err := s.payoutRepo.MarkCompleted(ctx, tx, payout.PayoutNo); err != nil {
			return fmt.Errorf("更新提现单状态失败: %w", err)
		}

		if err := s.writeOutbox(ctx, tx, payout, model.PayoutStatusCompleted, ""); err != nil {
			return err
		}

		return nil
	})

	if err != nil && !errors.Is(err, errAlreadyApplied) {
		return nil, err
	}

	logger.Infof("提现完成: payoutNo=%s, tipsterID=%d, amount=%d",
		payout.PayoutNo, payout.TipsterID, payout.Amount)

	return s.payoutRepo.GetByPayoutNo(ctx, payout.PayoutNo)
}

// OnFailed 处理商转账失败回调
// 幂等去重后把冻结金额整额返还可用余额，记录失败原因；
// 资金当场回到可用状态，不存在卡在冻结里的中间态
func (s *PayoutService) OnFailed(ctx context.Context, externalRef, reason string) (*model.PayoutRequest, error) {
	payout, err := s.payoutRepo.GetByExternalRef(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, repository.ErrPayoutNotFound
	}

	switch payout.Status {
	case model.PayoutStatusFailed:
		return payout, nil // 重复投递，幂等
	case model.PayoutStatusCompleted:
		logger.Warnf("已完成提现单收到迟到的失败事件，忽略: payoutNo=%s, ref=%s, reason=%s",
			payout.PayoutNo, externalRef, reason)
		return payout, nil
	}

	webhookLock := lock.NewPayoutWebhookLock(s.redisClient, externalRef, uuid.NewString())
	err = webhookLock.Lock(ctx, 100*time.Millisecond, 30)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer webhookLock.Unlock(ctx)

	payout, err = s.payoutRepo.GetByPayoutNo(ctx, payout.PayoutNo)
	if err != nil {
		return nil, err
	}
	if payout.Status == model.PayoutStatusFailed || payout.Status == model.PayoutStatusCompleted {
		return payout, nil
	}

	trans, err := s.ledgerRepo.GetByRefNoAndType(ctx, payout.PayoutNo, model.TransactionTypePayout)
	if err != nil {
		return nil, fmt.Errorf("查询提现流水失败: %w", err)
	}
	if trans == nil {
		return nil, repository.ErrTransactionStatusInvalid
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.idempotencyRepo.Record(ctx, tx, model.IdempotencyScopePayout, externalRef); err != nil {
			if errors.Is(err, repository.ErrDuplicateExternalID) {
				return errAlreadyApplied
			}
			return fmt.Errorf("登记幂等键失败: %w", err)
		}

		// 提现失败：冻结金额整额返还可用余额
		if err := s.walletRepo.ReleaseReservation(ctx, tx, payout.TipsterID, payout.Amount, false); err != nil {
			return fmt.Errorf("返还冻结失败: %w", err)
		}

		if err := s.ledgerRepo.MarkFailed(ctx, tx, trans.TransactionNo); err != nil {
			return fmt.Errorf("更新提现流水失败: %w", err)
		}

		if err := s.payoutRepo.MarkFailed(ctx, tx, payout.PayoutNo, reason); err != nil {
			return fmt.Errorf("更新提现单状态失败: %w", err)
		}

		if err := s.writeOutbox(ctx, tx, payout, model.PayoutStatusFailed, reason); err != nil {
			return err
		}

		return nil
	})

	if err != nil && !errors.Is(err, errAlreadyApplied) {
		return nil, err
	}

	logger.Infof("提现失败，资金已返还: payoutNo=%s, tipsterID=%d, amount=%d, reason=%s",
		payout.PayoutNo, payout.TipsterID, payout.Amount, reason)

	return s.payoutRepo.GetByPayoutNo(ctx, payout.PayoutNo)
}

func (s *PayoutService) writeOutbox(ctx context.Context, tx *gorm.DB, payout *model.PayoutRequest, status, reason string) error {
	msgPayload := map[string]interface{}{
		"payout_no":  payout.PayoutNo,
		"tipster_id": payout.TipsterID,
		"amount":     payout.Amount,
		"status":     status,
		"reason":     reason,
		"updated_at": time.Now().Format(time.RFC3339),
	}
	payloadBytes, _ := json.Marshal(msgPayload)

	outboxMsg := &model.OutboxMessage{
		MessageKey: payout.PayoutNo,
		Topic:      s.cfg.Kafka.Topic.PayoutResult,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
