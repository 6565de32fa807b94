package messaging

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/p2pexchange/pkg/logger"
	"github.com/wyfcoding/p2pexchange/pkg/mq"
)

const maxAttempts = 5

// Relay drains pending outbox rows to Kafka. One instance runs per process;
// the conditional status update keeps rows from being sent twice even if a
// second instance appears.
type Relay struct {
	db       *gorm.DB
	producer *mq.Producer
	topic    string
	interval time.Duration
	batch    int
}

func NewRelay(db *gorm.DB, producer *mq.Producer, topic string, interval time.Duration, batch int) *Relay {
	if batch <= 0 {
		batch = 100
	}
	return &Relay{db: db, producer: producer, topic: topic, interval: interval, batch: batch}
}

// Start blocks until the context is canceled.
func (r *Relay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	logger.Info(ctx, "outbox relay started", "topic", r.topic, "interval", r.interval.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "outbox relay stopped")
			return
		case <-ticker.C:
			if err := r.drain(ctx); err != nil {
				logger.Error(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

func (r *Relay) drain(ctx context.Context) error {
	var messages []OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", statusPending).
		Order("created_at ASC").
		Limit(r.batch).
		Find(&messages).Error
	if err != nil {
		return err
	}
	for i := range messages {
		message := &messages[i]
		if err := r.send(ctx, message); err != nil {
			logger.Error(ctx, "outbox send failed",
				"message_id", message.ID, "kind", message.Kind, "error", err)
		}
	}
	return nil
}

func (r *Relay) send(ctx context.Context, message *OutboxMessage) error {
	if err := r.producer.SendRaw(ctx, r.topic, message.WalletID, []byte(message.Payload)); err != nil {
		status := statusPending
		if message.Attempts+1 >= maxAttempts {
			status = statusFailed
		}
		if dbErr := r.db.WithContext(ctx).Model(message).Updates(map[string]interface{}{
			"attempts": gorm.Expr("attempts + 1"),
			"status":   status,
		}).Error; dbErr != nil {
			return dbErr
		}
		return err
	}
	res := r.db.WithContext(ctx).Model(&OutboxMessage{}).
		Where("id = ? AND status = ?", message.ID, statusPending).
		Updates(map[string]interface{}{"status": statusSent, "dedup_key": nil})
	return res.Error
}
