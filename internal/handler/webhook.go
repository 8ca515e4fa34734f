package handler

import (
	"errors"

	"tipwallet/internal/repository"
	"tipwallet/pkg/logger"
	"tipwallet/pkg/response"

	"github.com/gin-gonic/gin"
)

// 处理商回调事件类型
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPayoutCompleted  = "payout.completed"
	EventPayoutFailed     = "payout.failed"
)

// WebhookEvent 处理商回调载荷
// 处理商至少投递一次（at-least-once），重复与乱序由入账逻辑兜底
type WebhookEvent struct {
	EventType  string `json:"event_type" binding:"required"`
	ExternalID string `json:"external_id" binding:"required"`
	Reason     string `json:"reason"`
}

// PaymentWebhook 处理商支付结果回调
// POST /api/v1/webhook/payment
//
// 【关键点】回调处理必须幂等：重复投递返回成功，否则处理商会无限重试。
// 未知的支付凭证返回业务错误（可能是投递早于结算单落库，处理商会重试）
func (h *Handler) PaymentWebhook(c *gin.Context) {
	var event WebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	switch event.EventType {
	case EventPaymentSucceeded:
		record, err := h.settlementService.OnPaymentConfirmed(c.Request.Context(), event.ExternalID)
		if err != nil {
			businessError(c, err)
			return
		}
		response.Success(c, gin.H{
			"settlement_no": record.SettlementNo,
			"status":        record.Status,
		})
	case EventPaymentFailed:
		if err := h.settlementService.OnPaymentFailed(c.Request.Context(), event.ExternalID, event.Reason); err != nil {
			businessError(c, err)
			return
		}
		response.Success(c, nil)
	default:
		logger.Warnf("忽略未知支付回调事件: type=%s, externalID=%s", event.EventType, event.ExternalID)
		response.Success(c, nil)
	}
}

// PayoutWebhook 处理商转账结果回调
// POST /api/v1/webhook/payout
func (h *Handler) PayoutWebhook(c *gin.Context) {
	var event WebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	switch event.EventType {
	case EventPayoutCompleted:
		payout, err := h.payoutService.OnConfirmed(c.Request.Context(), event.ExternalID)
		if err != nil {
			if errors.Is(err, repository.ErrPayoutNotFound) {
				response.BusinessError(c, response.CodePayoutNotFound, err.Error())
				return
			}
			businessError(c, err)
			return
		}
		response.Success(c, gin.H{
			"payout_no": payout.PayoutNo,
			"status":    payout.Status,
		})
	case EventPayoutFailed:
		payout, err := h.payoutService.OnFailed(c.Request.Context(), event.ExternalID, event.Reason)
		if err != nil {
			businessError(c, err)
			return
		}
		response.Success(c, gin.H{
			"payout_no": payout.PayoutNo,
			"status":    payout.Status,
		})
	default:
		logger.Warnf("忽略未知提现回调事件: type=%s, externalID=%s", event.EventType, event.ExternalID)
		response.Success(c, nil)
	}
}
