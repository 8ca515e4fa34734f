package repository

import (
	"context"
	"errors"

	"tipwallet/internal/model"

	"gorm.io/gorm"
)

var (
	ErrTransactionStatusInvalid = errors.New("流水状态不合法")
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.WalletTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *LedgerRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.WalletTransaction, error) {
	var trans model.WalletTransaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *LedgerRepository) GetByExternalID(ctx context.Context, externalID string) (*model.WalletTransaction, error) {
	var trans model.WalletTransaction
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

// GetByRefNoAndType 按业务单号与类型查询流水（如提现单对应的 PAYOUT 流水）
func (r *LedgerRepository) GetByRefNoAndType(ctx context.Context, refNo, transType string) (*model.WalletTransaction, error) {
	var trans model.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("ref_no = ? AND type = ?", refNo, transType).
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

// Complete 将 PENDING 流水置为 COMPLETED，并补记处理商外部ID
// 已完成的流水不允许再变更
func (r *LedgerRepository) Complete(ctx context.Context, tx *gorm.DB, transactionNo string, externalID *string) error {
	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": model.TransactionStatusCompleted,
	}
	if externalID != nil {
		updates["external_id"] = externalID
	}

	result := tx.WithContext(ctx).
		Model(&model.WalletTransaction{}).
		Where("transaction_no = ? AND status = ?", transactionNo, model.TransactionStatusPending).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrTransactionStatusInvalid
	}

	return nil
}

// MarkFailed 将 PENDING 流水置为 FAILED
func (r *LedgerRepository) MarkFailed(ctx context.Context, tx *gorm.DB, transactionNo string) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.WalletTransaction{}).
		Where("transaction_no = ? AND status = ?", transactionNo, model.TransactionStatusPending).
		Update("status", model.TransactionStatusFailed)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrTransactionStatusInvalid
	}

	return nil
}

func (r *LedgerRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.WalletTransaction, int64, error) {
	var transactions []*model.WalletTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WalletTransaction{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}
