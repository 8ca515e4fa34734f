package model

import (
	"time"
)

// ============================================================================
// 流水类型常量
// ============================================================================

const (
	TransactionTypeDeposit              = "DEPOSIT"               // 充值入账
	TransactionTypePurchase             = "PURCHASE"              // 购买方案（买家侧审计记录）
	TransactionTypeSale                 = "SALE"                  // 方案售出（卖家入账）
	TransactionTypeCommission           = "COMMISSION"            // 平台抽成入账
	TransactionTypeRefund               = "REFUND"                // 退款冲正
	TransactionTypeSubscriptionPurchase = "SUBSCRIPTION_PURCHASE" // 订阅购买（买家侧审计记录）
	TransactionTypeSubscriptionSale     = "SUBSCRIPTION_SALE"     // 订阅售出（卖家入账）
	TransactionTypePayout               = "PAYOUT"                // 提现出账
)

const (
	TransactionStatusPending   = "PENDING"
	TransactionStatusCompleted = "COMPLETED"
	TransactionStatusFailed    = "FAILED"
)

// ============================================================================
// 钱包流水实体
// ============================================================================

// WalletTransaction 钱包流水表
// 记录钱包的每一笔资金变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 已完成的流水不修改、不删除 —— 冲正只能通过插入 REFUND 流水实现
// 2. 每笔流水必须关联业务单号（结算单号或提现单号）—— 便于对账
// 3. 记录交易前后余额 —— 便于校验余额一致性
// 4. external_id 为处理商幂等键，存在时全局唯一
type WalletTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	UserID        int64     `gorm:"index;not null" json:"user_id"`                               // 钱包所属用户ID
	RefNo         string    `gorm:"type:varchar(64);index;not null" json:"ref_no"`               // 关联业务单号（结算单号/提现单号）
	Amount        int64     `gorm:"not null" json:"amount"`                                      // 金额（正数入账，负数出账）
	Type          string    `gorm:"type:varchar(32);not null" json:"type"`                       // 流水类型
	Status        string    `gorm:"type:varchar(20);index;not null" json:"status"`               // 流水状态
	ExternalID    *string   `gorm:"type:varchar(64);uniqueIndex" json:"external_id,omitempty"`   // 处理商外部ID（幂等键）
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`                              // 变更前可用余额
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`                               // 变更后可用余额
	Remark        string    `gorm:"type:varchar(256)" json:"remark"`                             // 备注
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transaction"
}
