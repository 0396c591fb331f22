package models

import (
	"context"
	"time"

	"bitbucket.org/trimtech/booking_backend/config"
)

// SyncConflict records a divergence between a reservation and its remote
// calendar event where both sides changed since the last sync. Rows exist
// only while pending; resolution deletes them.
type SyncConflict struct {
	ID                int            `gorm:"primary_key" json:"id"`
	BusinessId        string         `gorm:"index;not null" json:"business_id"`
	ReservationId     int            `gorm:"uniqueIndex;not null" json:"reservation_id"`
	ExternalEventId   string         `gorm:"size:128;not null" json:"external_event_id"`
	LocalVersionJSON  []byte         `gorm:"type:json" json:"local_version"`
	RemoteVersionJSON []byte         `gorm:"type:json" json:"remote_version"`
	DetectedAt        time.Time      `gorm:"not null" json:"detected_at"`
	Resolution        SyncResolution `gorm:"size:20;default:pending" json:"resolution"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetPendingSyncConflicts(ctx context.Context, businessId string) ([]*SyncConflict, error) {
	db := config.GetDB()
	var results []*SyncConflict
	err := db.WithContext(ctx).
		Where("business_id = ? AND resolution = ?", businessId, SyncResolutionPending).
		Order("detected_at").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func GetSyncConflictByReservation(ctx context.Context, businessId string, reservationId int) (*SyncConflict, error) {
	db := config.GetDB()
	var conflict SyncConflict
	err := db.WithContext(ctx).
		Where("business_id = ? AND reservation_id = ? AND resolution = ?", businessId, reservationId, SyncResolutionPending).
		First(&conflict).Error
	if err != nil {
		return nil, err
	}
	return &conflict, nil
}
