package database

import (
	"fmt"
	"time"

	"tipwallet/internal/config"
	"tipwallet/internal/model"
	"tipwallet/pkg/logger"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitMySQL 初始化 MySQL 连接
// TranslateError 开启后唯一键冲突统一转为 gorm.ErrDuplicatedKey，幂等守卫依赖该行为
func InitMySQL(cfg *config.MySQLConfig) *gorm.DB {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		logger.Fatalf("连接 MySQL 失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatalf("获取底层 DB 失败: %v", err)
	}

	// 连接池配置
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	err = db.AutoMigrate(
		&model.Wallet{},
		&model.WalletTransaction{},
		&model.SettlementRecord{},
		&model.PayoutRequest{},
		&model.IdempotencyKey{},
		&model.OutboxMessage{},
	)
	if err != nil {
		logger.Fatalf("自动迁移表结构失败: %v", err)
	}

	DB = db
	logger.Infof("MySQL 连接成功")
	return db
}
