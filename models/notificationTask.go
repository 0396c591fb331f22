package models

import (
	"context"
	"time"

	"bitbucket.org/trimtech/booking_backend/config"
)

// NotificationTask is one outbound message. Rows are marked sent, never
// deleted: the Sent flag is the sole guard against re-delivery.
type NotificationTask struct {
	ID            int                 `gorm:"primary_key" json:"id"`
	BusinessId    string              `gorm:"index;not null" json:"business_id"`
	TargetId      int                 `gorm:"index;not null" json:"target_id"`
	ReservationId int                 `gorm:"index" json:"reservation_id"`
	Channel       NotificationChannel `gorm:"type:enum('push','message','reminder');not null" json:"channel"`
	Title         string              `gorm:"size:255" json:"title"`
	Body          string              `gorm:"type:text" json:"body"`
	ScheduledFor  time.Time           `gorm:"index;not null" json:"scheduled_for"`
	Sent          bool                `gorm:"index;not null;default:false" json:"sent"`
	SentAt        *time.Time          `json:"sent_at"`

	// sweep claim fields; a stale claim is reclaimable
	ClaimedAt *time.Time `json:"claimed_at"`
	ClaimedBy *string    `gorm:"size:64" json:"claimed_by"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PushSubscription is one device/browser endpoint of a user. Its lifecycle is
// independent of reservations; it is pruned only when the push gateway reports
// the endpoint permanently invalid.
type PushSubscription struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	UserId     int       `gorm:"index;not null" json:"user_id"`
	Endpoint   string    `gorm:"size:512;not null" json:"endpoint"`
	KeysP256dh string    `gorm:"size:255" json:"keys_p256dh"`
	KeysAuth   string    `gorm:"size:255" json:"keys_auth"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func CreatePushSubscription(ctx context.Context, businessId string, userId int, endpoint, p256dh, auth string) (*PushSubscription, error) {
	db := config.GetDB()
	sub := PushSubscription{
		BusinessId: businessId,
		UserId:     userId,
		Endpoint:   endpoint,
		KeysP256dh: p256dh,
		KeysAuth:   auth,
	}
	if err := db.WithContext(ctx).Create(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func GetPushSubscriptions(ctx context.Context, businessId string, userId int) ([]*PushSubscription, error) {
	db := config.GetDB()
	var subs []*PushSubscription
	err := db.WithContext(ctx).
		Where("business_id = ? AND user_id = ?", businessId, userId).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func DeletePushSubscription(ctx context.Context, id int) error {
	db := config.GetDB()
	return db.WithContext(ctx).Delete(&PushSubscription{}, id).Error
}
