package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

// 业务错误码（钱包与结算）
const (
	CodeInsufficientFunds   = 1001 // 余额不足
	CodeBelowMinimum        = 1002 // 低于最小提现金额
	CodePaymentNotFound     = 1003 // 支付凭证不存在
	CodeInvalidAmount       = 1004 // 金额不合法
	CodeReservationConflict = 1005 // 已有进行中的提现
	CodeSettlementNotFound  = 1006 // 结算单不存在
	CodeAlreadyRefunded     = 1007 // 已退款
	CodeStatusInvalid       = 1008 // 状态不允许该操作
	CodePayoutNotFound      = 1009 // 提现单不存在
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
