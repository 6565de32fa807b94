// Package messaging delivers notifications through a transactional outbox:
// the notifier writes rows in the caller's transaction, and a relay drains
// pending rows to Kafka.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
	"github.com/wyfcoding/p2pexchange/pkg/metrics"
)

const (
	statusPending = "pending"
	statusSent    = "sent"
	statusFailed  = "failed"
)

// OutboxMessage is one queued notification.
type OutboxMessage struct {
	ID        string    `gorm:"type:varchar(36);primary_key"`
	Kind      string    `gorm:"type:varchar(64);index"`
	WalletID  string    `gorm:"type:varchar(32);index"`
	// Unique while pending, so repeated signals collapse into one row
	DedupKey  *string   `gorm:"type:varchar(128);uniqueIndex"`
	Payload   string    `gorm:"type:text"`
	Status    string    `gorm:"type:varchar(20);index;default:'pending'"`
	Attempts  int       `gorm:"default:0"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (OutboxMessage) TableName() string {
	return "exchange_outbox_messages"
}

// OutboxNotifier implements domain.Notifier by writing outbox rows. It uses
// the transaction in the context when one is present, so the notification
// commits together with the state change that caused it.
type OutboxNotifier struct {
	db      *gorm.DB
	metrics *metrics.Metrics
}

func NewOutboxNotifier(db *gorm.DB, m *metrics.Metrics) *OutboxNotifier {
	return &OutboxNotifier{db: db, metrics: m}
}

func (n *OutboxNotifier) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return n.db
}

func (n *OutboxNotifier) Notify(ctx context.Context, notification *domain.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	message := &OutboxMessage{
		ID:       uuid.NewString(),
		Kind:     notification.Kind,
		WalletID: notification.WalletID,
		Payload:  string(payload),
		Status:   statusPending,
	}
	if notification.DedupKey != "" {
		key := notification.DedupKey
		message.DedupKey = &key
	}
	err = n.getDB(ctx).WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(message).Error
	if err != nil {
		return fmt.Errorf("queue notification: %w", err)
	}
	if n.metrics != nil {
		n.metrics.NotificationsQueuedTotal.Inc()
	}
	return nil
}
