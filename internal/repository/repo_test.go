package repository

import (
	"path/filepath"
	"testing"

	"tipwallet/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupTestDB 创建隔离的测试数据库
// TranslateError 保证唯一索引冲突统一转换为 gorm.ErrDuplicatedKey，与生产驱动行为一致
func setupTestDB(t *testing.T) *gorm.DB {
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

	return db
}
