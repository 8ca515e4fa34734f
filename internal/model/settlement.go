package model

import (
	"time"
)

const (
	SettlementStatusPending = "PENDING"
	SettlementStatusPaid    = "PAID"
	SettlementStatusFailed  = "FAILED"
)

// 结算单状态机：PENDING -> PAID / FAILED，均为终态
// 退款不回退状态，只通过 refunded_at 标记并插入冲正流水
var ValidSettlementTransitions = map[string][]string{
	SettlementStatusPending: {SettlementStatusPaid, SettlementStatusFailed},
}

func CanTransitionSettlement(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidSettlementTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

const (
	SettlementKindTicket       = "TICKET"       // 方案（ticket）购买
	SettlementKindSubscription = "SUBSCRIPTION" // 订阅购买/续费
)

// SettlementRecord 结算单表
// 一笔买家对卖家的交易协议：买家经处理商扣款，确认后卖家与平台按比例入账
//
// external_payment_ref 唯一索引保证同一笔外部支付不可能结算两个结算单
type SettlementRecord struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	SettlementNo       string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"settlement_no"`
	RequestID          string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"` // 幂等ID，客户端生成
	BuyerID            int64      `gorm:"index;not null" json:"buyer_id"`
	SellerID           int64      `gorm:"index;not null" json:"seller_id"`
	Kind               string     `gorm:"type:varchar(20);not null" json:"kind"`            // TICKET / SUBSCRIPTION
	GrossAmount        int64      `gorm:"not null" json:"gross_amount"`                     // 买家支付总额（分）
	CommissionAmount   int64      `gorm:"not null;default:0" json:"commission_amount"`      // 平台抽成（分），确认时计算
	SellerAmount       int64      `gorm:"not null;default:0" json:"seller_amount"`          // 卖家净入账（分），确认时计算
	ExternalPaymentRef *string    `gorm:"type:varchar(64);uniqueIndex" json:"external_payment_ref,omitempty"` // 处理商支付凭证
	ClientHandle       string     `gorm:"type:varchar(128)" json:"client_handle"`           // 交给客户端完成扣款的句柄
	Status             string     `gorm:"type:varchar(20);index;not null" json:"status"`
	PaidAt             *time.Time `json:"paid_at"`
	RefundedAt         *time.Time `json:"refunded_at"`
	CreatedAt          time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SettlementRecord) TableName() string {
	return "settlement_record"
}
