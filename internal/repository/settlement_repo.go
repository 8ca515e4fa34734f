package repository

import (
	"context"
	"errors"
	"time"

	"tipwallet/internal/model"

	"gorm.io/gorm"
)

var (
	ErrSettlementNotFound      = errors.New("结算单不存在")
	ErrSettlementStatusInvalid = errors.New("结算单状态不合法")
	ErrAlreadyRefunded         = errors.New("结算单已退款，请勿重复操作")
)

type SettlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) Create(ctx context.Context, tx *gorm.DB, record *model.SettlementRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

func (r *SettlementRepository) GetBySettlementNo(ctx context.Context, settlementNo string) (*model.SettlementRecord, error) {
	var record model.SettlementRecord
	err := r.db.WithContext(ctx).Where("settlement_no = ?", settlementNo).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettlementNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *SettlementRepository) GetByRequestID(ctx context.Context, requestID string) (*model.SettlementRecord, error) {
	var record model.SettlementRecord
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *SettlementRepository) GetByExternalRef(ctx context.Context, externalRef string) (*model.SettlementRecord, error) {
	var record model.SettlementRecord
	err := r.db.WithContext(ctx).Where("external_payment_ref = ?", externalRef).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// MarkPaid 结算确认：写入分账金额并将状态推进为 PAID
// 条件更新保证只有 PENDING 状态的结算单会被推进，重复确认影响行数为 0
func (r *SettlementRepository) MarkPaid(ctx context.Context, tx *gorm.DB, settlementNo string, commissionAmount, sellerAmount int64) error {
	if !model.CanTransitionSettlement(model.SettlementStatusPending, model.SettlementStatusPaid) {
		return ErrSettlementStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.SettlementRecord{}).
		Where("settlement_no = ? AND status = ?", settlementNo, model.SettlementStatusPending).
		Updates(map[string]interface{}{
			"status":            model.SettlementStatusPaid,
			"commission_amount": commissionAmount,
			"seller_amount":     sellerAmount,
			"paid_at":           &now,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrSettlementStatusInvalid
	}

	return nil
}

// MarkFailed 处理商支付失败，PENDING -> FAILED
func (r *SettlementRepository) MarkFailed(ctx context.Context, tx *gorm.DB, settlementNo string) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.SettlementRecord{}).
		Where("settlement_no = ? AND status = ?", settlementNo, model.SettlementStatusPending).
		Update("status", model.SettlementStatusFailed)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrSettlementStatusInvalid
	}

	return nil
}

// MarkRefunded 标记退款
// 退款不回退结算单状态，只记录 refunded_at；条件更新保证不会重复退款
func (r *SettlementRepository) MarkRefunded(ctx context.Context, tx *gorm.DB, settlementNo string) error {
	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.SettlementRecord{}).
		Where("settlement_no = ? AND status = ? AND refunded_at IS NULL", settlementNo, model.SettlementStatusPaid).
		Update("refunded_at", &now)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAlreadyRefunded
	}

	return nil
}

func (r *SettlementRepository) ListByBuyerID(ctx context.Context, buyerID int64, page, pageSize int) ([]*model.SettlementRecord, int64, error) {
	var records []*model.SettlementRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&model.SettlementRecord{}).Where("buyer_id = ?", buyerID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error

	return records, total, err
}
