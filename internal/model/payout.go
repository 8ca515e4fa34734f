package model

import (
	"time"
)

const (
	PayoutStatusRequested  = "REQUESTED"
	PayoutStatusProcessing = "PROCESSING"
	PayoutStatusCompleted  = "COMPLETED"
	PayoutStatusFailed     = "FAILED"
)

// 提现状态机：REQUESTED -> PROCESSING -> COMPLETED / FAILED
// REQUESTED 直接失败的场景（如提交前被处理商拒绝）也允许
var ValidPayoutTransitions = map[string][]string{
	PayoutStatusRequested:  {PayoutStatusProcessing, PayoutStatusFailed},
	PayoutStatusProcessing: {PayoutStatusCompleted, PayoutStatusFailed},
}

func CanTransitionPayout(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidPayoutTransitions[currentStatus]
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

// PayoutRequest 提现申请表
// 创建时金额已从可用余额原子转入冻结金额；确认后冻结金额扣除，失败则返还可用余额
//
// 同一达人同一时刻只允许存在一笔 REQUESTED/PROCESSING 状态的申请，防止重复占用资金
type PayoutRequest struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	PayoutNo         string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"payout_no"`
	TipsterID        int64      `gorm:"index;not null" json:"tipster_id"`
	Amount           int64      `gorm:"not null" json:"amount"` // 提现金额（分）
	Status           string     `gorm:"type:varchar(20);index;not null" json:"status"`
	ExternalPayoutRef *string   `gorm:"type:varchar(64);uniqueIndex" json:"external_payout_ref,omitempty"` // 处理商转账凭证
	FailureReason    string     `gorm:"type:varchar(256)" json:"failure_reason"`
	CompletedAt      *time.Time `json:"completed_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"` // 申请时间
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PayoutRequest) TableName() string {
	return "payout_request"
}
