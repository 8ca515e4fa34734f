package model

import (
	"time"
)

// 幂等键命名空间：支付确认与提现确认各自独立
const (
	IdempotencyScopePayment = "PAYMENT"
	IdempotencyScopePayout  = "PAYOUT"
)

// IdempotencyKey 幂等键记录表
// 外部事件（支付确认、提现回调）入账前先在同一事务内写入幂等键，
// (scope, external_id) 唯一索引保证并发投递时只有第一个写入者成功，
// 第二个写入者拿到唯一键冲突后直接返回已结算结果
type IdempotencyKey struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Scope      string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_scope_external" json:"scope"`
	ExternalID string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_scope_external" json:"external_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (IdempotencyKey) TableName() string {
	return "idempotency_key"
}
