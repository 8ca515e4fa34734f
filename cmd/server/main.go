package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tipwallet/internal/config"
	"tipwallet/internal/gateway"
	"tipwallet/internal/handler"
	"tipwallet/internal/infrastructure/cache"
	"tipwallet/internal/infrastructure/database"
	"tipwallet/internal/infrastructure/mq"
	"tipwallet/internal/job"
	"tipwallet/internal/service"
	"tipwallet/pkg/idgen"
	"tipwallet/pkg/logger"
)

func main() {
	// 加载配置
	cfg := config.LoadConfig("config/config.yaml")

	// 初始化日志
	logger.Init(cfg.Log.Level, cfg.Log.File)
	defer logger.Sync()

	// 初始化 ID 生成器
	idgen.Init(1)

	// 初始化 MySQL
	db := database.InitMySQL(&cfg.MySQL)

	// 初始化 Redis
	redisClient := cache.InitRedis(&cfg.Redis)

	// 初始化 Kafka
	mq.InitKafka(&cfg.Kafka)
	defer mq.CloseKafka()

	// 初始化支付处理商网关
	gw := gateway.NewHTTPGateway(&cfg.Gateway)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, cfg)
	go outboxSender.Start(ctx)

	payoutService := service.NewPayoutService(db, redisClient, cfg, gw)
	payoutSubmitJob := job.NewPayoutSubmitJob(db, payoutService)
	go payoutSubmitJob.Start(ctx)

	// 设置路由
	router := handler.SetupRouter(db, redisClient, cfg, gw)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// 在 goroutine 中启动服务器
	go func() {
		logger.Infof("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("服务关闭异常: %v", err)
	}

	logger.Infof("服务已关闭")
}
