package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/trimtech/booking_backend/config"
	"bitbucket.org/trimtech/booking_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Reservation is a client's booked appointment with a professional covering
// one or more services.
//
// Invariants:
//   - EndTime = StartTime + sum of line durations
//   - no two slot-occupying reservations of one professional overlap in [start, end)
//   - ExternalEventId links the local row to the remote calendar event and
//     must survive edits
type Reservation struct {
	ID             int               `gorm:"primary_key" json:"id"`
	BusinessId     string            `gorm:"index;not null" json:"business_id"`
	CustomerId     int               `gorm:"index;not null" json:"customer_id"`
	ProfessionalId int               `gorm:"index;not null" json:"professional_id"`
	StartTime      time.Time         `gorm:"index;not null" json:"start_time"`
	EndTime        time.Time         `gorm:"not null" json:"end_time"`
	Status         ReservationStatus `gorm:"type:enum('scheduled','confirmed','in_progress','completed','canceled','no_show');default:scheduled" json:"status"`
	TotalValue     decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"total_value"`
	PaymentStatus  PaymentStatus     `gorm:"size:20;default:pending" json:"payment_status"`

	// calendar sync state; nil = unsynced
	ExternalEventId *string `gorm:"size:128" json:"external_event_id"`
	SyncedHash      *string `gorm:"size:64" json:"synced_hash"`

	Lines []ReservationLine `gorm:"foreignKey:ReservationId" json:"lines"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ReservationLine captures one service at booking time. Price and duration
// are frozen here; later service edits do not rewrite history.
type ReservationLine struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id"`
	ReservationId   int             `gorm:"index;not null" json:"reservation_id"`
	ServiceId       int             `gorm:"not null" json:"service_id"`
	ServiceName     string          `gorm:"size:100" json:"service_name"`
	PriceAtBooking  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price_at_booking"`
	DurationMinutes int             `gorm:"not null" json:"duration_minutes"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// IntervalsOverlap reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func IntervalsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func GetReservation(ctx context.Context, id int) (*Reservation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Reservation](ctx, businessId, id, "Lines")
}

// GetOccupyingReservations loads the slot-occupying reservations of a
// professional whose interval intersects [from, to).
func GetOccupyingReservations(ctx context.Context, businessId string, professionalId int, from, to time.Time) ([]*Reservation, error) {
	db := config.GetDB()

	var results []*Reservation
	err := db.WithContext(ctx).
		Where("business_id = ? AND professional_id = ?", businessId, professionalId).
		Where("status NOT IN ?", []ReservationStatus{ReservationStatusCanceled, ReservationStatusNoShow}).
		Where("start_time < ? AND end_time > ?", to, from).
		Order("start_time").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// CountOverlapping is the occupancy check re-run as the last step before
// commit. Passing the booking transaction keeps the check and the insert in
// the same logical transaction.
func CountOverlapping(tx *gorm.DB, businessId string, professionalId int, start, end time.Time, excludeReservationId int) (int64, error) {
	var count int64
	q := tx.Model(&Reservation{}).
		Where("business_id = ? AND professional_id = ?", businessId, professionalId).
		Where("status NOT IN ?", []ReservationStatus{ReservationStatusCanceled, ReservationStatusNoShow}).
		Where("start_time < ? AND end_time > ?", end, start)
	if excludeReservationId > 0 {
		q = q.Where("id != ?", excludeReservationId)
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// GetSyncableReservations lists active future reservations that are unsynced
// or whose content drifted from the last pushed hash.
func GetSyncableReservations(ctx context.Context, businessId string, now time.Time) ([]*Reservation, error) {
	db := config.GetDB()

	var results []*Reservation
	err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Where("status NOT IN ?", []ReservationStatus{ReservationStatusCanceled, ReservationStatusNoShow}).
		Where("start_time >= ?", now).
		Order("start_time").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
