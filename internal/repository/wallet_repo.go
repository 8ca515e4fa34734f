package repository

import (
	"context"
	"errors"

	"tipwallet/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWalletNotFound      = errors.New("钱包不存在")
	ErrInsufficientBalance = errors.New("余额不足")
	ErrOptimisticLock      = errors.New("乐观锁冲突，请重试")
	ErrReservationMismatch = errors.New("冻结金额不足，无法释放")
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) Create(ctx context.Context, wallet *model.Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *WalletRepository) GetByUserID(ctx context.Context, userID int64) (*model.Wallet, error) {
	return r.getByUserID(ctx, r.db, userID)
}

// GetByUserIDTx 在事务内读取钱包快照（用于记录流水前后余额）
func (r *WalletRepository) GetByUserIDTx(ctx context.Context, tx *gorm.DB, userID int64) (*model.Wallet, error) {
	return r.getByUserID(ctx, tx, userID)
}

func (r *WalletRepository) getByUserID(ctx context.Context, db *gorm.DB, userID int64) (*model.Wallet, error) {
	var wallet model.Wallet
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// GetOrCreate 获取钱包，不存在则惰性创建
// 钱包在用户第一笔资金事件时创建，之后永不删除（注销用户保留审计数据）
func (r *WalletRepository) GetOrCreate(ctx context.Context, userID int64) (*model.Wallet, error) {
	wallet, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}

	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	newWallet := &model.Wallet{
		UserID: userID,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newWallet).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}

// Credit 入账：增加可用余额，同时累加累计收入
func (r *WalletRepository) Credit(ctx context.Context, tx *gorm.DB, userID int64, amount int64) error {
	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"available_balance": gorm.Expr("available_balance + ?", amount),
			"total_earned":      gorm.Expr("total_earned + ?", amount),
			"version":           gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}

	return nil
}

// Debit 出账：扣减可用余额
// 条件更新保证余额不会被扣成负数，version 条件防止并发写覆盖
func (r *WalletRepository) Debit(ctx context.Context, tx *gorm.DB, userID int64, amount int64, version int) error {
	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("user_id = ? AND available_balance >= ? AND version = ?", userID, amount, version).
		Updates(map[string]interface{}{
			"available_balance": gorm.Expr("available_balance - ?", amount),
			"version":           gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		wallet, err := r.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if wallet.AvailableBalance < amount {
			return ErrInsufficientBalance
		}
		return ErrOptimisticLock
	}

	return nil
}

// Reserve 冻结：金额从可用余额原子转入提现冻结
func (r *WalletRepository) Reserve(ctx context.Context, tx *gorm.DB, userID int64, amount int64) error {
	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("user_id = ? AND available_balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"available_balance": gorm.Expr("available_balance - ?", amount),
			"pending_payout":    gorm.Expr("pending_payout + ?", amount),
			"version":           gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		_, err := r.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		return ErrInsufficientBalance
	}

	return nil
}

// ReleaseReservation 释放冻结
// success=true：提现成功，冻结金额扣除（资金已转出平台）
// success=false：提现失败，冻结金额返还可用余额
func (r *WalletRepository) ReleaseReservation(ctx context.Context, tx *gorm.DB, userID int64, amount int64, success bool) error {
	updates := map[string]interface{}{
		"pending_payout": gorm.Expr("pending_payout - ?", amount),
		"version":        gorm.Expr("version + 1"),
	}
	if !success {
		updates["available_balance"] = gorm.Expr("available_balance + ?", amount)
	}

	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("user_id = ? AND pending_payout >= ?", userID, amount).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		_, err := r.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		return ErrReservationMismatch
	}

	return nil
}
