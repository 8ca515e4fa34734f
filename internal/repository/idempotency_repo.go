package repository

import (
	"context"
	"errors"

	"tipwallet/internal/model"

	"gorm.io/gorm"
)

var (
	// ErrDuplicateExternalID 外部事件已入账
	// 对调用方而言是幂等成功而非错误：拿到该错误后直接返回已结算结果
	ErrDuplicateExternalID = errors.New("外部ID已入账")
)

// IdempotencyRepository 幂等守卫
// 入账事务内先写幂等键：(scope, external_id) 唯一索引保证并发投递时
// 第一个写入者成功，第二个拿到唯一键冲突。依赖数据库约束而非先查后写，
// 因此对同一外部事件的并发重复投递是竞态安全的
type IdempotencyRepository struct {
	db *gorm.DB
}

func NewIdempotencyRepository(db *gorm.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Record 在事务内登记外部ID，已存在时返回 ErrDuplicateExternalID
func (r *IdempotencyRepository) Record(ctx context.Context, tx *gorm.DB, scope, externalID string) error {
	if tx == nil {
		tx = r.db
	}

	key := &model.IdempotencyKey{
		Scope:      scope,
		ExternalID: externalID,
	}

	err := tx.WithContext(ctx).Create(key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateExternalID
		}
		return err
	}

	return nil
}

// Exists 查询外部ID是否已入账（只读路径使用，写路径必须走 Record）
func (r *IdempotencyRepository) Exists(ctx context.Context, scope, externalID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.IdempotencyKey{}).
		Where("scope = ? AND external_id = ?", scope, externalID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
