package model

import (
	"time"
)

// Wallet 用户钱包表
// 记录用户的可用余额、提现冻结金额与累计收入，是结算系统的核心数据
//
// 【重要】余额字段只允许在写入流水的同一事务内变更，
// 任何其他代码路径都不得直接修改 available_balance / pending_payout / total_earned
type Wallet struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           int64     `gorm:"uniqueIndex;not null" json:"user_id"`          // 用户ID，业务方传入
	AvailableBalance int64     `gorm:"not null;default:0" json:"available_balance"`  // 可用余额（分）
	PendingPayout    int64     `gorm:"not null;default:0" json:"pending_payout"`     // 提现在途冻结金额（分）
	TotalEarned      int64     `gorm:"not null;default:0" json:"total_earned"`       // 累计入账金额（分），只增不减
	Version          int       `gorm:"not null;default:0" json:"version"`            // 乐观锁版本号
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallet"
}
