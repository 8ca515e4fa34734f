package service

import (
	"context"

	"tipwallet/internal/model"
	"tipwallet/internal/repository"

	"gorm.io/gorm"
)

// WalletService 钱包查询
// 余额快照直接读最新已提交状态，不走缓存，保证与流水一致
type WalletService struct {
	walletRepo *repository.WalletRepository
	ledgerRepo *repository.LedgerRepository
	db         *gorm.DB
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{
		walletRepo: repository.NewWalletRepository(db),
		ledgerRepo: repository.NewLedgerRepository(db),
		db:         db,
	}
}

func (s *WalletService) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	return s.walletRepo.GetOrCreate(ctx, userID)
}

func (s *WalletService) ListTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.WalletTransaction, int64, error) {
	return s.ledgerRepo.ListByUserID(ctx, userID, page, pageSize)
}
