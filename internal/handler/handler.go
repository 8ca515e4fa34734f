package handler

import (
	"errors"
	"strconv"

	"tipwallet/internal/commission"
	"tipwallet/internal/config"
	"tipwallet/internal/gateway"
	"tipwallet/internal/repository"
	"tipwallet/internal/service"
	"tipwallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	walletService     *service.WalletService
	settlementService *service.SettlementService
	payoutService     *service.PayoutService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, gw gateway.Gateway) *Handler {
	return &Handler{
		walletService:     service.NewWalletService(db),
		settlementService: service.NewSettlementService(db, rdb, cfg, gw),
		payoutService:     service.NewPayoutService(db, rdb, cfg, gw),
	}
}

// businessError 把服务层错误映射为业务错误码
func businessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeInsufficientFunds, err.Error())
	case errors.Is(err, service.ErrBelowMinimum):
		response.BusinessError(c, response.CodeBelowMinimum, err.Error())
	case errors.Is(err, service.ErrReservationConflict):
		response.BusinessError(c, response.CodeReservationConflict, err.Error())
	case errors.Is(err, service.ErrPaymentNotFound):
		response.BusinessError(c, response.CodePaymentNotFound, err.Error())
	case errors.Is(err, commission.ErrInvalidAmount):
		response.BusinessError(c, response.CodeInvalidAmount, err.Error())
	case errors.Is(err, repository.ErrSettlementNotFound):
		response.BusinessError(c, response.CodeSettlementNotFound, err.Error())
	case errors.Is(err, repository.ErrPayoutNotFound):
		response.BusinessError(c, response.CodePayoutNotFound, err.Error())
	case errors.Is(err, repository.ErrAlreadyRefunded):
		response.BusinessError(c, response.CodeAlreadyRefunded, err.Error())
	case errors.Is(err, repository.ErrSettlementStatusInvalid), errors.Is(err, repository.ErrPayoutStatusInvalid):
		response.BusinessError(c, response.CodeStatusInvalid, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 钱包相关接口
// ============================================================

// GetBalance 查询钱包余额快照
// GET /api/v1/wallet/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userIDStr := c.Query("user_id")
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	wallet, err := h.walletService.GetWallet(c.Request.Context(), userID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":           wallet.UserID,
		"available_balance": wallet.AvailableBalance,
		"pending_payout":    wallet.PendingPayout,
		"total_earned":      wallet.TotalEarned,
	})
}

// ListTransactions 查询钱包流水
// GET /api/v1/wallet/history?user_id=xxx&page=1&page_size=10
func (h *Handler) ListTransactions(c *gin.Context) {
	userIDStr := c.Query("user_id")
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	transactions, total, err := h.walletService.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 结算相关接口
// ============================================================

// InitiateSettlement 发起结算（买家下单）
// POST /api/v1/settlement/initiate
func (h *Handler) InitiateSettlement(c *gin.Context) {
	var req service.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.settlementService.Initiate(c.Request.Context(), &req)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, result)
}

// ConfirmSettlementRequest 确认结算请求
type ConfirmSettlementRequest struct {
	SettlementNo       string `json:"settlement_no" binding:"required"`
	ExternalPaymentRef string `json:"external_payment_ref" binding:"required"`
}

// ConfirmSettlement 确认结算（客户端扣款完成后回调）
// POST /api/v1/settlement/confirm
//
// 【关键点】确认必须可以安全重试：
// 1. 幂等性：同一外部支付凭证只入账一次，重复调用返回已结算结果
// 2. 原子性：卖家入账与平台抽成要么同时成功，要么同时失败
func (h *Handler) ConfirmSettlement(c *gin.Context) {
	var req ConfirmSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	record, err := h.settlementService.Confirm(c.Request.Context(), req.SettlementNo, req.ExternalPaymentRef)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"settlement_no":     record.SettlementNo,
		"status":            record.Status,
		"gross_amount":      record.GrossAmount,
		"commission_amount": record.CommissionAmount,
		"seller_amount":     record.SellerAmount,
	})
}

// RefundSettlement 退款冲正
// POST /api/v1/settlement/refund
//
// 【关键点】退款流程：
// 1. 只支持全额冲正，结算单必须是 PAID 且未退款
// 2. 冲正流水同时作用于卖家与平台钱包
// 3. 外部扣款的撤销由处理商侧另行发起，这里只处理账内资金
func (h *Handler) RefundSettlement(c *gin.Context) {
	var req service.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.settlementService.Refund(c.Request.Context(), &req)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, result)
}

// ListSettlements 查询买家结算单列表
// GET /api/v1/settlement/list?buyer_id=xxx&page=1&page_size=10
func (h *Handler) ListSettlements(c *gin.Context) {
	buyerIDStr := c.Query("buyer_id")
	buyerID, err := strconv.ParseInt(buyerIDStr, 10, 64)
	if err != nil {
		response.ParamError(c, "buyer_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	records, total, err := h.settlementService.ListByBuyer(c.Request.Context(), buyerID, page, pageSize)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 提现相关接口
// ============================================================

// RequestPayout 发起提现申请
// POST /api/v1/payout/request
func (h *Handler) RequestPayout(c *gin.Context) {
	var req service.PayoutRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	payout, err := h.payoutService.Request(c.Request.Context(), &req)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"payout_no": payout.PayoutNo,
		"status":    payout.Status,
		"amount":    payout.Amount,
	})
}

// GetPayout 查询提现单状态
// GET /api/v1/payout/detail?payout_no=xxx
func (h *Handler) GetPayout(c *gin.Context) {
	payoutNo := c.Query("payout_no")
	if payoutNo == "" {
		response.ParamError(c, "payout_no 参数不能为空")
		return
	}

	payout, err := h.payoutService.Get(c.Request.Context(), payoutNo)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, payout)
}
