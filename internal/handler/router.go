package handler

import (
	"tipwallet/internal/config"
	"tipwallet/internal/gateway"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, gw gateway.Gateway) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg, gw)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 钱包相关
		wallet := api.Group("/wallet")
		{
			wallet.GET("/balance", h.GetBalance)
			wallet.GET("/history", h.ListTransactions)
		}

		// 结算相关
		settlement := api.Group("/settlement")
		{
			settlement.POST("/initiate", h.InitiateSettlement)
			settlement.POST("/confirm", h.ConfirmSettlement)
			settlement.POST("/refund", h.RefundSettlement)
			settlement.GET("/list", h.ListSettlements)
		}

		// 提现相关
		payout := api.Group("/payout")
		{
			payout.POST("/request", h.RequestPayout)
			payout.GET("/detail", h.GetPayout)
		}

		// 处理商回调
		webhook := api.Group("/webhook")
		{
			webhook.POST("/payment", h.PaymentWebhook)
			webhook.POST("/payout", h.PayoutWebhook)
		}
	}

	// 监控指标
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
