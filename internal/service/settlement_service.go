package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tipwallet/internal/commission"
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
	ErrPaymentNotFound = errors.New("支付凭证不存在或与结算单不匹配")

	// errAlreadySettled 事务内部哨兵：幂等键已存在，需要回滚事务并返回已结算结果
	errAlreadySettled = errors.New("已结算")
)

// SettlementService 结算引擎
// 负责把一笔已确认的外部支付转化为卖家入账 + 平台抽成两条流水，
// 并推进结算单状态机 PENDING -> PAID / FAILED
type SettlementService struct {
	db              *gorm.DB
	redisClient     *redis.Client
	cfg             *config.Config
	gw              gateway.Gateway
	settlementRepo  *repository.SettlementRepository
	walletRepo      *repository.WalletRepository
	ledgerRepo      *repository.LedgerRepository
	idempotencyRepo *repository.IdempotencyRepository
	outboxRepo      *repository.OutboxRepository
}

func NewSettlementService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, gw gateway.Gateway) *SettlementService {
	return &SettlementService{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		gw:              gw,
		settlementRepo:  repository.NewSettlementRepository(db),
		walletRepo:      repository.NewWalletRepository(db),
		ledgerRepo:      repository.NewLedgerRepository(db),
		idempotencyRepo: repository.NewIdempotencyRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

type InitiateRequest struct {
	RequestID   string `json:"request_id" binding:"required"`
	BuyerID     int64  `json:"buyer_id" binding:"required"`
	SellerID    int64  `json:"seller_id" binding:"required"`
	GrossAmount int64  `json:"gross_amount" binding:"required,gt=0"`
	Kind        string `json:"kind" binding:"required,oneof=TICKET SUBSCRIPTION"`
}

type InitiateResponse struct {
	SettlementNo string `json:"settlement_no"`
	ClientHandle string `json:"client_handle"`
	Status       string `json:"status"`
}

// Initiate 发起结算：向处理商创建支付意向并落 PENDING 结算单
// 不触碰任何账务（资金尚未变动），因此中途失败可以安全放弃；
// 超时未确认的 PENDING 结算单留给对账处理，不自动关单（扣款可能仍在带外进行）
func (s *SettlementService) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResponse, error) {
	if req.GrossAmount <= 0 {
		return nil, commission.ErrInvalidAmount
	}

	// 幂等校验
	existing, err := s.settlementRepo.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询结算单失败: %w", err)
	}
	if existing != nil {
		return &InitiateResponse{
			SettlementNo: existing.SettlementNo,
			ClientHandle: existing.ClientHandle,
			Status:       existing.Status,
		}, nil
	}

	intent, err := s.gw.CreatePaymentIntent(ctx, req.GrossAmount, s.cfg.Gateway.Currency)
	if err != nil {
		return nil, fmt.Errorf("创建支付意向失败: %w", err)
	}

	record := &model.SettlementRecord{
		SettlementNo:       idgen.GenerateSettlementNo(),
		RequestID:          req.RequestID,
		BuyerID:            req.BuyerID,
		SellerID:           req.SellerID,
		Kind:               req.Kind,
		GrossAmount:        req.GrossAmount,
		ExternalPaymentRef: &intent.ExternalID,
		ClientHandle:       intent.ClientHandle,
		Status:             model.SettlementStatusPending,
	}

	err = s.settlementRepo.Create(ctx, nil, record)
	if err != nil {
		// 并发重复请求撞上 request_id 唯一索引时返回已创建的结算单
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, qerr := s.settlementRepo.GetByRequestID(ctx, req.RequestID)
			if qerr == nil && existing != nil {
				return &InitiateResponse{
					SettlementNo: existing.SettlementNo,
					ClientHandle: existing.ClientHandle,
					Status:       existing.Status,
				}, nil
			}
		}
		return nil, fmt.Errorf("创建结算单失败: %w", err)
	}

	logger.Infof("结算单已创建: settlementNo=%s, buyerID=%d, sellerID=%d, gross=%d",
		record.SettlementNo, req.BuyerID, req.SellerID, req.GrossAmount)

	return &InitiateResponse{
		SettlementNo: record.SettlementNo,
		ClientHandle: record.ClientHandle,
		Status:       record.Status,
	}, nil
}

// Confirm 确认结算（客户端回调路径）
//
// 【关键点】确认是结算系统最核心的操作，需要保证：
// 1. 幂等性：同一外部支付凭证只会入账一次，重复确认返回已结算结果
// 2. 原子性：卖家入账、平台抽成、结算单状态推进必须同时成功或同时失败
// 3. 并发安全：同一凭证的并发确认由分布式锁 + 幂等键唯一索引双重兜底
func (s *SettlementService) Confirm(ctx context.Context, settlementNo, externalRef string) (*model.SettlementRecord, error) {
	record, err := s.settlementRepo.GetBySettlementNo(ctx, settlementNo)
	if err != nil {
		return nil, err
	}

	if record.ExternalPaymentRef == nil || *record.ExternalPaymentRef != externalRef {
		return nil, ErrPaymentNotFound
	}

	return s.settle(ctx, record)
}

// OnPaymentConfirmed 处理商支付确认回调（webhook 路径）
// 与客户端 Confirm 可能乱序、重复到达，两条路径共用同一套幂等入账逻辑
func (s *SettlementService) OnPaymentConfirmed(ctx context.Context, externalRef string) (*model.SettlementRecord, error) {
	record, err := s.settlementRepo.GetByExternalRef(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrPaymentNotFound
	}

	return s.settle(ctx, record)
}

// OnPaymentFailed 处理商支付失败回调
// 只推进 PENDING -> FAILED；已入账（PAID）后迟到的失败事件直接忽略
func (s *SettlementService) OnPaymentFailed(ctx context.Context, externalRef, reason string) error {
	record, err := s.settlementRepo.GetByExternalRef(ctx, externalRef)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrPaymentNotFound
	}

	switch record.Status {
	case model.SettlementStatusFailed:
		return nil // 重复投递，幂等
	case model.SettlementStatusPaid:
		logger.Warnf("已入账结算单收到迟到的失败事件，忽略: settlementNo=%s, ref=%s, reason=%s",
			record.SettlementNo, externalRef, reason)
		return nil
	}

	err = s.settlementRepo.MarkFailed(ctx, nil, record.SettlementNo)
	if err != nil {
		if errors.Is(err, repository.ErrSettlementStatusInvalid) {
			return nil // 状态已被并发推进，视为已处理
		}
		return err
	}

	logger.Infof("结算单支付失败: settlementNo=%s, reason=%s", record.SettlementNo, reason)
	return nil
}

// settle 幂等入账：卖家净额 + 平台抽成两条流水在同一事务内写入
func (s *SettlementService) settle(ctx context.Context, record *model.SettlementRecord) (*model.SettlementRecord, error) {
	if record.Status == model.SettlementStatusPaid {
		return record, nil // 幂等：已结算直接返回
	}
	if record.Status == model.SettlementStatusFailed {
		return nil, repository.ErrSettlementStatusInvalid
	}

	externalRef := *record.ExternalPaymentRef

	confirmLock := lock.NewConfirmLock(s.redisClient, externalRef, uuid.NewString())
	err := confirmLock.Lock(ctx, 100*time.Millisecond, 30)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer confirmLock.Unlock(ctx)

	// 获取锁后重读，拦截锁等待期间已完成的结算
	record, err = s.settlementRepo.GetBySettlementNo(ctx, record.SettlementNo)
	if err != nil {
		return nil, err
	}
	if record.Status == model.SettlementStatusPaid {
		return record, nil
	}
	if record.Status == model.SettlementStatusFailed {
		return nil, repository.ErrSettlementStatusInvalid
	}

	commissionAmount, sellerAmount, err := commission.Split(record.GrossAmount, s.cfg.Business.CommissionRateBps)
	if err != nil {
		return nil, err
	}

	// 钱包惰性创建在事务外完成，事务内只做余额变更
	if _, err = s.walletRepo.GetOrCreate(ctx, record.SellerID); err != nil {
		return nil, fmt.Errorf("获取卖家钱包失败: %w", err)
	}
	if _, err = s.walletRepo.GetOrCreate(ctx, s.cfg.Business.PlatformUserID); err != nil {
		return nil, fmt.Errorf("获取平台钱包失败: %w", err)
	}

	saleType := model.TransactionTypeSale
	if record.Kind == model.SettlementKindSubscription {
		saleType = model.TransactionTypeSubscriptionSale
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 幂等键先行：并发确认中只有第一个事务能写入成功
		if err := s.idempotencyRepo.Record(ctx, tx, model.IdempotencyScopePayment, externalRef); err != nil {
			if errors.Is(err, repository.ErrDuplicateExternalID) {
				return errAlreadySettled
			}
			return fmt.Errorf("登记幂等键失败: %w", err)
		}

		// 卖家入账
		if err := s.walletRepo.Credit(ctx, tx, record.SellerID, sellerAmount); err != nil {
			return fmt.Errorf("卖家入账失败: %w", err)
		}

		sellerWallet, err := s.walletRepo.GetByUserIDTx(ctx, tx, record.SellerID)
		if err != nil {
			return fmt.Errorf("读取卖家钱包失败: %w", err)
		}

		sellerTrans := &model.WalletTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        record.SellerID,
			RefNo:         record.SettlementNo,
			Amount:        sellerAmount,
			Type:          saleType,
			Status:        model.TransactionStatusCompleted,
			ExternalID:    &externalRef,
			BalanceBefore: sellerWallet.AvailableBalance - sellerAmount,
			BalanceAfter:  sellerWallet.AvailableBalance,
			Remark:        fmt.Sprintf("售出-%s-%s", record.Kind, record.SettlementNo),
		}
		if err := s.ledgerRepo.Create(ctx, tx, sellerTrans); err != nil {
			return fmt.Errorf("记录卖家流水失败: %w", err)
		}

		// 平台抽成入账
		if err := s.walletRepo.Credit(ctx, tx, s.cfg.Business.PlatformUserID, commissionAmount); err != nil {
			return fmt.Errorf("平台抽成入账失败: %w", err)
		}

		platformWallet, err := s.walletRepo.GetByUserIDTx(ctx, tx, s.cfg.Business.PlatformUserID)
		if err != nil {
			return fmt.Errorf("读取平台钱包失败: %w", err)
		}

		commissionTrans := &model.WalletTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        s.cfg.Business.PlatformUserID,
			RefNo:         record.SettlementNo,
			Amount:        commissionAmount,
			Type:          model.TransactionTypeCommission,
			Status:        model.TransactionStatusCompleted,
			BalanceBefore: platformWallet.AvailableBalance - commissionAmount,
			BalanceAfter:  platformWallet.AvailableBalance,
			Remark:        fmt.Sprintf("抽成-%s", record.SettlementNo),
		}
		if err := s.ledgerRepo.Create(ctx, tx, commissionTrans); err != nil {
			return fmt.Errorf("记录抽成流水失败: %w", err)
		}

		if err := s.settlementRepo.MarkPaid(ctx, tx, record.SettlementNo, commissionAmount, sellerAmount); err != nil {
			return fmt.Errorf("更新结算单状态失败: %w", err)
		}

		msgPayload := map[string]interface{}{
			"settlement_no":     record.SettlementNo,
			"buyer_id":          record.BuyerID,
			"seller_id":         record.SellerID,
			"kind":              record.Kind,
			"gross_amount":      record.GrossAmount,
			"commission_amount": commissionAmount,
			"seller_amount":     sellerAmount,
			"status":            model.SettlementStatusPaid,
			"paid_at":           time.Now().Format(time.RFC3339),
		}
		payloadBytes, _ := json.Marshal(msgPayload)

		outboxMsg := &model.OutboxMessage{
			MessageKey: record.SettlementNo,
			Topic:      s.cfg.Kafka.Topic.SettlementResult,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		return nil
	})

	if err != nil && !errors.Is(err, errAlreadySettled) {
		return nil, err
	}

	if errors.Is(err, errAlreadySettled) {
		logger.Infof("外部支付已入账，返回已结算结果: settlementNo=%s, ref=%s", record.SettlementNo, externalRef)
	} else {
		logger.Infof("结算成功: settlementNo=%s, seller=%d(+%d), commission=%d",
			record.SettlementNo, record.SellerID, sellerAmount, commissionAmount)
	}

	return s.settlementRepo.GetBySettlementNo(ctx, record.SettlementNo)
}

// ListByBuyer 查询买家的结算单（购买记录）
func (s *SettlementService) ListByBuyer(ctx context.Context, buyerID int64, page, pageSize int) ([]*model.SettlementRecord, int64, error) {
	return s.settlementRepo.ListByBuyerID(ctx, buyerID, page, pageSize)
}

type RefundRequest struct {
	RequestID    string `json:"request_id" binding:"required"`
	SettlementNo string `json:"settlement_no" binding:"required"`
	Reason       string `json:"reason"`
}

type RefundResponse struct {
	SettlementNo     string `json:"settlement_no"`
	SellerRefundNo   string `json:"seller_refund_no"`
	PlatformRefundNo string `json:"platform_refund_no"`
	SellerAmount     int64  `json:"seller_amount"`
	CommissionAmount int64  `json:"commission_amount"`
}

// Refund 退款冲正
// 只允许 PAID 且未退款的结算单；插入负数 REFUND 流水冲正卖家与平台入账，
// 结算单自身状态不变（只记 refunded_at）。外部扣款的撤销由处理商侧另行发起。
// 退款设计上不幂等：重复调用返回"已退款"业务错误
func (s *SettlementService) Refund(ctx context.Context, req *RefundRequest) (*RefundResponse, error) {
	record, err := s.settlementRepo.GetBySettlementNo(ctx, req.SettlementNo)
	if err != nil {
		return nil, err
	}

	if record.Status != model.SettlementStatusPaid {
		return nil, repository.ErrSettlementStatusInvalid
	}
	if record.RefundedAt != nil {
		return nil, repository.ErrAlreadyRefunded
	}

	refundLock := lock.NewRefundLock(s.redisClient, req.SettlementNo, req.RequestID)
	err = refundLock.Lock(ctx, 100*time.Millisecond, 30)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer refundLock.Unlock(ctx)

	record, err = s.settlementRepo.GetBySettlementNo(ctx, req.SettlementNo)
	if err != nil {
		return nil, err
	}
	if record.RefundedAt != nil {
		return nil, repository.ErrAlreadyRefunded
	}

	sellerWallet, err := s.walletRepo.GetByUserID(ctx, record.SellerID)
	if err != nil {
		return nil, fmt.Errorf("查询卖家钱包失败: %w", err)
	}
	platformWallet, err := s.walletRepo.GetByUserID(ctx, s.cfg.Business.PlatformUserID)
	if err != nil {
		return nil, fmt.Errorf("查询平台钱包失败: %w", err)
	}

	resp := &RefundResponse{
		SettlementNo:     record.SettlementNo,
		SellerAmount:     record.SellerAmount,
		CommissionAmount: record.CommissionAmount,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 先抢退款标记，条件更新保证并发下只有一个事务能成功
		if err := s.settlementRepo.MarkRefunded(ctx, tx, record.SettlementNo); err != nil {
			return err
		}

		// 冲正卖家入账
		if err := s.walletRepo.Debit(ctx, tx, record.SellerID, record.SellerAmount, sellerWallet.Version); err != nil {
			return fmt.Errorf("冲正卖家入账失败: %w", err)
		}

		sellerTrans := &model.WalletTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        record.SellerID,
			RefNo:         record.SettlementNo,
			Amount:        -record.SellerAmount,
			Type:          model.TransactionTypeRefund,
			Status:        model.TransactionStatusCompleted,
			BalanceBefore: sellerWallet.AvailableBalance,
			BalanceAfter:  sellerWallet.AvailableBalance - record.SellerAmount,
			Remark:        fmt.Sprintf("退款冲正-%s-%s", record.SettlementNo, req.Reason),
		}
		if err := s.ledgerRepo.Create(ctx, tx, sellerTrans); err != nil {
			return fmt.Errorf("记录卖家退款流水失败: %w", err)
		}
		resp.SellerRefundNo = sellerTrans.TransactionNo

		// 冲正平台抽成
		if err := s.walletRepo.Debit(ctx, tx, s.cfg.Business.PlatformUserID, record.CommissionAmount, platformWallet.Version); err != nil {
			return fmt.Errorf("冲正平台抽成失败: %w", err)
		}

		platformTrans := &model.WalletTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        s.cfg.Business.PlatformUserID,
			RefNo:         record.SettlementNo,
			Amount:        -record.CommissionAmount,
			Type:          model.TransactionTypeRefund,
			Status:        model.TransactionStatusCompleted,
			BalanceBefore: platformWallet.AvailableBalance,
			BalanceAfter:  platformWallet.AvailableBalance - record.CommissionAmount,
			Remark:        fmt.Sprintf("抽成退款冲正-%s", record.SettlementNo),
		}
		if err := s.ledgerRepo.Create(ctx, tx, platformTrans); err != nil {
			return fmt.Errorf("记录平台退款流水失败: %w", err)
		}
		resp.PlatformRefundNo = platformTrans.TransactionNo

		msgPayload := map[string]interface{}{
			"settlement_no":     record.SettlementNo,
			"seller_id":         record.SellerID,
			"seller_amount":     record.SellerAmount,
			"commission_amount": record.CommissionAmount,
			"event":             "REFUNDED",
			"reason":            req.Reason,
			"refunded_at":       time.Now().Format(time.RFC3339),
		}
		payloadBytes, _ := json.Marshal(msgPayload)

		outboxMsg := &model.OutboxMessage{
			MessageKey: record.SettlementNo,
			Topic:      s.cfg.Kafka.Topic.SettlementResult,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	logger.Infof("退款成功: settlementNo=%s, seller=-%d, commission=-%d",
		record.SettlementNo, record.SellerAmount, record.CommissionAmount)

	return resp, nil
}
