package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"tipwallet/internal/config"
	"tipwallet/internal/gateway"
	"tipwallet/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeGateway 测试用处理商桩
// 支付意向与转账凭证按序号生成，可注入转账错误模拟处理商不可用
type fakeGateway struct {
	mu          sync.Mutex
	intentSeq   int
	transferSeq int
	intents     []gateway.PaymentIntent
	transfers   []string
	transferErr error
}

func (f *fakeGateway) CreatePaymentIntent(ctx context.Context, amount int64, currency string) (*gateway.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.intentSeq++
	intent := gateway.PaymentIntent{
		ClientHandle: fmt.Sprintf("ch_test_%d", f.intentSeq),
		ExternalID:   fmt.Sprintf("pi_test_%d", f.intentSeq),
	}
	f.intents = append(f.intents, intent)
	return &intent, nil
}

func (f *fakeGateway) CreateTransfer(ctx context.Context, accountID string, amount int64, idemKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.transferErr != nil {
		return "", f.transferErr
	}

	f.transferSeq++
	ref := fmt.Sprintf("po_test_%d", f.transferSeq)
	f.transfers = append(f.transfers, ref)
	return ref, nil
}

type testEnv struct {
	db  *gorm.DB
	rdb *redis.Client
	cfg *config.Config
	gw  *fakeGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&model.Wallet{},
		&model.WalletTransaction{},
		&model.SettlementRecord{},
		&model.PayoutRequest{},
		&model.IdempotencyKey{},
		&model.OutboxMessage{},
	)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				SettlementResult: "settlement_result",
				PayoutResult:     "payout_result",
			},
		},
		Gateway: config.GatewayConfig{Currency: "CNY"},
		Business: config.BusinessConfig{
			CommissionRateBps:   1000, // 10%
			MinimumPayoutAmount: 1000,
			PlatformUserID:      1,
			MaxRetryCount:       5,
		},
	}

	return &testEnv{db: db, rdb: rdb, cfg: cfg, gw: &fakeGateway{}}
}

func (e *testEnv) settlementService() *SettlementService {
	return NewSettlementService(e.db, e.rdb, e.cfg, e.gw)
}

func (e *testEnv) payoutService() *PayoutService {
	return NewPayoutService(e.db, e.rdb, e.cfg, e.gw)
}

func (e *testEnv) walletService() *WalletService {
	return NewWalletService(e.db)
}
