package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
)

// ActionRecord is one audit row: which wallet did what to which entity.
type ActionRecord struct {
	gorm.Model
	ActorWalletID string `gorm:"column:actor_wallet_id;type:varchar(32);index;not null"`
	Action        string `gorm:"column:action;type:varchar(64);not null"`
	Entity        string `gorm:"column:entity;type:varchar(32);index:idx_entity;not null"`
	EntityID      string `gorm:"column:entity_id;type:varchar(32);index:idx_entity;not null"`
	Detail        string `gorm:"column:detail;type:text"`
}

func (ActionRecord) TableName() string {
	return "action_logs"
}

type actionLogger struct {
	db *gorm.DB
}

func NewActionLogger(db *gorm.DB) domain.ActionLogger {
	return &actionLogger{db: db}
}

func (l *actionLogger) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return l.db
}

func (l *actionLogger) Record(ctx context.Context, actorWalletID, action, entity, entityID, detail string) error {
	record := &ActionRecord{
		ActorWalletID: actorWalletID,
		Action:        action,
		Entity:        entity,
		EntityID:      entityID,
		Detail:        detail,
	}
	return l.getDB(ctx).WithContext(ctx).Create(record).Error
}

func (l *actionLogger) LastActionAt(ctx context.Context, entity, entityID string) (time.Time, error) {
	var record ActionRecord
	err := l.getDB(ctx).WithContext(ctx).
		Where("entity = ? AND entity_id = ?", entity, entityID).
		Order("id DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return record.CreatedAt, nil
}
