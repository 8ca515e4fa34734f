package job

import (
	"context"
	"time"

	"tipwallet/internal/model"
	"tipwallet/internal/repository"
	"tipwallet/internal/service"
	"tipwallet/pkg/logger"

	"gorm.io/gorm"
)

// PayoutSubmitJob 定时把 REQUESTED 提现单提交到处理商
// 转账以提现单号为幂等键，服务崩溃后重启重扫不会造成重复打款
type PayoutSubmitJob struct {
	db            *gorm.DB
	payoutRepo    *repository.PayoutRepository
	payoutService *service.PayoutService
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
}

func NewPayoutSubmitJob(db *gorm.DB, payoutService *service.PayoutService) *PayoutSubmitJob {
	return &PayoutSubmitJob{
		db:            db,
		payoutRepo:    repository.NewPayoutRepository(db),
		payoutService: payoutService,
		stopCh:        make(chan struct{}),
		interval:      5 * time.Second,
		batchSize:     50,
	}
}

func (j *PayoutSubmitJob) Start(ctx context.Context) {
	logger.Infof("[PayoutSubmitJob] 提现提交任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infof("[PayoutSubmitJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			logger.Infof("[PayoutSubmitJob] 任务停止")
			return
		case <-ticker.C:
			j.submitRequestedPayouts(ctx)
		}
	}
}

func (j *PayoutSubmitJob) Stop() {
	close(j.stopCh)
}

func (j *PayoutSubmitJob) submitRequestedPayouts(ctx context.Context) {
	payouts, err := j.payoutRepo.ListRequested(ctx, j.batchSize)
	if err != nil {
		logger.Errorf("[PayoutSubmitJob] 查询待提交提现单失败: %v", err)
		return
	}

	if len(payouts) == 0 {
		return
	}

	logger.Infof("[PayoutSubmitJob] 发现 %d 个待提交提现单", len(payouts))

	for _, payout := range payouts {
		submitted, err := j.payoutService.Submit(ctx, payout.PayoutNo)
		if err != nil {
			// 处理商暂不可用时留在 REQUESTED，下一轮重试
			logger.Errorf("[PayoutSubmitJob] 提交提现单失败: payoutNo=%s, err=%v", payout.PayoutNo, err)
			continue
		}
		if submitted.Status == model.PayoutStatusProcessing {
			logger.Infof("[PayoutSubmitJob] 提现单已提交: payoutNo=%s, tipsterID=%d, amount=%d",
				submitted.PayoutNo, submitted.TipsterID, submitted.Amount)
		}
	}
}
