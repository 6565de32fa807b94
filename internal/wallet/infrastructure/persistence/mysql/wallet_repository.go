package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/p2pexchange/internal/wallet/domain"
)

type walletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) domain.WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

func (r *walletRepository) Save(ctx context.Context, wallet *domain.Wallet) error {
	return r.getDB(ctx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance", "banned", "updated_at"}),
	}).Create(wallet).Error
}

// Get locks the row for update inside a transaction, so concurrent
// settlements against the same wallet serialize.
func (r *walletRepository) Get(ctx context.Context, walletID string) (*domain.Wallet, error) {
	db := r.getDB(ctx).WithContext(ctx)
	if _, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var wallet domain.Wallet
	if err := db.Where("wallet_id = ?", walletID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.Wallet{WalletID: walletID}, nil
		}
		return nil, err
	}
	return &wallet, nil
}

type banRepository struct {
	db *gorm.DB
}

func NewBanRepository(db *gorm.DB) domain.BanRepository {
	return &banRepository{db: db}
}

func (r *banRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

func (r *banRepository) Save(ctx context.Context, ban *domain.BanRecord) error {
	return r.getDB(ctx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ban_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"released", "released_at", "updated_at"}),
	}).Create(ban).Error
}

func (r *banRepository) Get(ctx context.Context, banID string) (*domain.BanRecord, error) {
	var ban domain.BanRecord
	if err := r.getDB(ctx).WithContext(ctx).Where("ban_id = ?", banID).First(&ban).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrBanNotFound
		}
		return nil, err
	}
	return &ban, nil
}

func (r *banRepository) ListActiveByWallet(ctx context.Context, walletID string) ([]*domain.BanRecord, error) {
	var bans []*domain.BanRecord
	err := r.getDB(ctx).WithContext(ctx).
		Where("wallet_id = ? AND released = ?", walletID, false).
		Order("id ASC").
		Find(&bans).Error
	return bans, err
}

type transferRepository struct {
	db *gorm.DB
}

func NewTransferRepository(db *gorm.DB) domain.TransferRepository {
	return &transferRepository{db: db}
}

func (r *transferRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

func (r *transferRepository) Save(ctx context.Context, transfer *domain.Transfer) error {
	return r.getDB(ctx).WithContext(ctx).Create(transfer).Error
}

func (r *transferRepository) ListByWallet(ctx context.Context, walletID string, limit int) ([]*domain.Transfer, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var transfers []*domain.Transfer
	err := r.getDB(ctx).WithContext(ctx).
		Where("from_wallet_id = ? OR to_wallet_id = ?", walletID, walletID).
		Order("id DESC").
		Limit(limit).
		Find(&transfers).Error
	return transfers, err
}
