package repository

import (
	"context"
	"errors"
	"time"

	"tipwallet/internal/model"

	"gorm.io/gorm"
)

var (
	ErrPayoutNotFound      = errors.New("提现单不存在")
	ErrPayoutStatusInvalid = errors.New("提现单状态不合法")
)

type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) Create(ctx context.Context, tx *gorm.DB, payout *model.PayoutRequest) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(payout).Error
}

func (r *PayoutRepository) GetByPayoutNo(ctx context.Context, payoutNo string) (*model.PayoutRequest, error) {
	var payout model.PayoutRequest
	err := r.db.WithContext(ctx).Where("payout_no = ?", payoutNo).First(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return &payout, nil
}

func (r *PayoutRepository) GetByExternalRef(ctx context.Context, externalRef string) (*model.PayoutRequest, error) {
	var payout model.PayoutRequest
	err := r.db.WithContext(ctx).Where("external_payout_ref = ?", externalRef).First(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// GetActiveByTipsterID 查询达人进行中的提现申请（REQUESTED / PROCESSING）
// 同一达人同一时刻最多一笔进行中申请
func (r *PayoutRepository) GetActiveByTipsterID(ctx context.Context, tipsterID int64) (*model.PayoutRequest, error) {
	var payout model.PayoutRequest
	err := r.db.WithContext(ctx).
		Where("tipster_id = ? AND status IN ?", tipsterID,
			[]string{model.PayoutStatusRequested, model.PayoutStatusProcessing}).
		First(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// ListRequested 查询待提交到处理商的提现申请（后台任务消费）
func (r *PayoutRepository) ListRequested(ctx context.Context, limit int) ([]*model.PayoutRequest, error) {
	var payouts []*model.PayoutRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", model.PayoutStatusRequested).
		Order("created_at ASC").
		Limit(limit).
		Find(&payouts).Error
	return payouts, err
}

// MarkProcessing 提交成功：记录处理商转账凭证，REQUESTED -> PROCESSING
func (r *PayoutRepository) MarkProcessing(ctx context.Context, payoutNo, externalRef string) error {
	if !model.CanTransitionPayout(model.PayoutStatusRequested, model.PayoutStatusProcessing) {
		return ErrPayoutStatusInvalid
	}

	result := r.db.WithContext(ctx).
		Model(&model.PayoutRequest{}).
		Where("payout_no = ? AND status = ?", payoutNo, model.PayoutStatusRequested).
		Updates(map[string]interface{}{
			"status":              model.PayoutStatusProcessing,
			"external_payout_ref": externalRef,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrPayoutStatusInvalid
	}

	return nil
}

// MarkCompleted 处理商确认到账，PROCESSING -> COMPLETED
func (r *PayoutRepository) MarkCompleted(ctx context.Context, tx *gorm.DB, payoutNo string) error {
	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.PayoutRequest{}).
		Where("payout_no = ? AND status = ?", payoutNo, model.PayoutStatusProcessing).
		Updates(map[string]interface{}{
			"status":       model.PayoutStatusCompleted,
			"completed_at": &now,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrPayoutStatusInvalid
	}

	return nil
}

// MarkFailed 处理商转账失败，进行中状态 -> FAILED，并记录失败原因
func (r *PayoutRepository) MarkFailed(ctx context.Context, tx *gorm.DB, payoutNo, reason string) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.PayoutRequest{}).
		Where("payout_no = ? AND status IN ?", payoutNo,
			[]string{model.PayoutStatusRequested, model.PayoutStatusProcessing}).
		Updates(map[string]interface{}{
			"status":         model.PayoutStatusFailed,
			"failure_reason": reason,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrPayoutStatusInvalid
	}

	return nil
}
