package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
)

type requisiteRepository struct {
	db *gorm.DB
}

func NewRequisiteRepository(db *gorm.DB) domain.RequisiteRepository {
	return &requisiteRepository{db: db}
}

func (r *requisiteRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

func (r *requisiteRepository) Save(ctx context.Context, requisite *domain.Requisite) error {
	return r.getDB(ctx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "requisite_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"rate", "currency_value", "value",
			"currency_value_min", "currency_value_max", "value_min", "value_max",
			"is_flex", "is_active", "field_values", "updated_at",
		}),
	}).Create(requisite).Error
}

func (r *requisiteRepository) Get(ctx context.Context, requisiteID string) (*domain.Requisite, error) {
	var requisite domain.Requisite
	if err := r.getDB(ctx).WithContext(ctx).Where("requisite_id = ?", requisiteID).First(&requisite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRequisiteNotFound
		}
		return nil, err
	}
	return &requisite, nil
}

func (r *requisiteRepository) ListByWallet(ctx context.Context, walletID string) ([]*domain.Requisite, error) {
	var requisites []*domain.Requisite
	err := r.getDB(ctx).WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("id ASC").
		Find(&requisites).Error
	return requisites, err
}

func (r *requisiteRepository) Candidates(ctx context.Context, currencyID string, typ domain.OrderType, order domain.RateOrder, exclude []string) ([]*domain.Requisite, error) {
	db := r.getDB(ctx).WithContext(ctx).
		Where("currency_id = ? AND type = ? AND in_process = ? AND is_active = ?", currencyID, typ, false, true).
		Where("currency_value > 0 AND value > 0")
	if len(exclude) > 0 {
		db = db.Where("requisite_id NOT IN ?", exclude)
	}
	if order == domain.RateDescending {
		db = db.Order("rate DESC, id ASC")
	} else {
		db = db.Order("rate ASC, id ASC")
	}
	var requisites []*domain.Requisite
	err := db.Find(&requisites).Error
	return requisites, err
}

// TryClaim flips in_process with a conditional update, so only one of two
// concurrent allocation passes wins the row.
func (r *requisiteRepository) TryClaim(ctx context.Context, requisiteID string) (bool, error) {
	res := r.getDB(ctx).WithContext(ctx).Model(&domain.Requisite{}).
		Where("requisite_id = ? AND in_process = ?", requisiteID, false).
		Update("in_process", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *requisiteRepository) Release(ctx context.Context, requisiteID string) error {
	return r.getDB(ctx).WithContext(ctx).Model(&domain.Requisite{}).
		Where("requisite_id = ?", requisiteID).
		Update("in_process", false).Error
}

func (r *requisiteRepository) Delete(ctx context.Context, requisiteID string) error {
	return r.getDB(ctx).WithContext(ctx).
		Where("requisite_id = ?", requisiteID).
		Delete(&domain.Requisite{}).Error
}

type blacklistRepository struct {
	db *gorm.DB
}

func NewBlacklistRepository(db *gorm.DB) domain.BlacklistRepository {
	return &blacklistRepository{db: db}
}

func (r *blacklistRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

func (r *blacklistRepository) Add(ctx context.Context, requestID, requisiteID string) error {
	entry := &domain.RequisiteBlacklist{RequestID: requestID, RequisiteID: requisiteID}
	return r.getDB(ctx).WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(entry).Error
}

func (r *blacklistRepository) ListByRequest(ctx context.Context, requestID string) ([]string, error) {
	var ids []string
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.RequisiteBlacklist{}).
		Where("request_id = ?", requestID).
		Pluck("requisite_id", &ids).Error
	return ids, err
}
