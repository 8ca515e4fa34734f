package gateway

import (
	"context"
	"errors"
)

var (
	ErrGatewayUnavailable = errors.New("支付网关不可用")
)

// PaymentIntent 处理商创建的支付意向
// ClientHandle 交给客户端完成扣款，ExternalID 是处理商侧的支付凭证，
// 后续确认回调都以它为幂等键
type PaymentIntent struct {
	ClientHandle string `json:"client_handle"`
	ExternalID   string `json:"external_id"`
}

// Gateway 支付处理商抽象接口
// 结算引擎与提现流程只依赖该契约，处理商的 HTTP/SDK 细节收敛在实现内部
type Gateway interface {
	// CreatePaymentIntent 创建支付意向（发起结算时调用，不产生任何账务变动）
	CreatePaymentIntent(ctx context.Context, amount int64, currency string) (*PaymentIntent, error)

	// CreateTransfer 向达人的关联账户发起转账（提现提交时调用）
	// idemKey 使用提现单号，处理商侧保证同一单号重复提交只转账一次
	CreateTransfer(ctx context.Context, accountID string, amount int64, idemKey string) (externalRef string, err error)
}
