package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/trimtech/booking_backend/config"
	"bitbucket.org/trimtech/booking_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReservationEventRecord is the transactional outbox row for lifecycle
// events. It is written inside the booking transaction and published to
// Pub/Sub asynchronously by the outbox dispatcher after commit.
type ReservationEventRecord struct {
	ID            int                    `gorm:"primary_key" json:"id"`
	BusinessId    string                 `gorm:"index;not null" json:"business_id"`
	ReservationId int                    `gorm:"index;not null" json:"reservation_id"`
	Action        ReservationEventAction `gorm:"size:20;not null" json:"action"`
	OccurredAt    time.Time              `gorm:"not null" json:"occurred_at"`
	OldObj        []byte                 `gorm:"type:json" json:"old_obj"`
	NewObj        []byte                 `gorm:"type:json" json:"new_obj"`
	CorrelationId string                 `gorm:"size:64" json:"correlation_id"`

	PublishStatus    string     `gorm:"size:20;index;not null;default:PENDING" json:"publish_status"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	NextAttemptAt    *time.Time `json:"next_attempt_at"`
	LockedAt         *time.Time `json:"locked_at"`
	LockedBy         *string    `gorm:"size:64" json:"locked_by"`
	PublishedAt      *time.Time `json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:64" json:"pub_sub_message_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// PublishReservationLifecycle writes the outbox row inside the caller's DB
// transaction. It does NOT touch Pub/Sub.
func PublishReservationLifecycle(ctx context.Context, tx *gorm.DB, businessId string, reservationId int, action ReservationEventAction, newObj, oldObj interface{}) error {
	var newInByte []byte
	var oldInByte []byte
	var err error

	if newObj != nil {
		newInByte, err = json.Marshal(newObj)
		if err != nil {
			return err
		}
	}
	if oldObj != nil {
		oldInByte, err = json.Marshal(oldObj)
		if err != nil {
			return err
		}
	}

	record := ReservationEventRecord{
		BusinessId:    businessId,
		ReservationId: reservationId,
		Action:        action,
		OccurredAt:    time.Now().UTC(),
		NewObj:        newInByte,
		OldObj:        oldInByte,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func ConvertToReservationEvent(rec ReservationEventRecord) config.ReservationEvent {
	return config.ReservationEvent{
		ID:            rec.ID,
		BusinessId:    rec.BusinessId,
		ReservationId: rec.ReservationId,
		Action:        string(rec.Action),
		OccurredAt:    rec.OccurredAt,
		OldObj:        rec.OldObj,
		NewObj:        rec.NewObj,
		CorrelationId: rec.CorrelationId,
	}
}
