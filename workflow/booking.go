package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/trimtech/booking_backend/config"
	"bitbucket.org/trimtech/booking_backend/models"
	"bitbucket.org/trimtech/booking_backend/utils"
	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const bookingLockTTL = 10 * time.Second

type NewReservation struct {
	CustomerId     int       `json:"customer_id" binding:"required"`
	ProfessionalId int       `json:"professional_id" binding:"required"`
	ServiceIds     []int     `json:"service_ids" binding:"required,min=1"`
	StartTime      time.Time `json:"start_time" binding:"required"`
}

// acquireBookingLock is the cross-instance fast path: it queues concurrent
// bookings for one professional before they hit the database. Correctness
// does not depend on it; the MySQL slot lock held across the insert
// transaction is the gate.
func acquireBookingLock(ctx context.Context, businessId string, professionalId int) (*redislock.Lock, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, nil
	}
	key := fmt.Sprintf("booking:%s:%d", businessId, professionalId)
	lock, err := locker.Obtain(ctx, key, bookingLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
	})
	if err == redislock.ErrNotObtained {
		return nil, utils.NewValidationError("slot no longer available")
	}
	if err != nil {
		return nil, utils.NewCollaboratorError("redis", err)
	}
	return lock, nil
}

func releaseBookingLock(lock *redislock.Lock) {
	if lock == nil {
		return
	}
	_ = lock.Release(context.Background())
}

// CreateReservation books one or more services with a professional at a
// start time. The occupancy check re-runs as the final step before commit,
// inside the insert transaction and under a per-professional advisory lock
// held until after that commit, so the first committer wins and the loser
// gets a retryable "slot no longer available" validation error.
//
// The reservation, its lines and the lifecycle outbox row commit atomically;
// a line insert failure rolls the reservation back, never leaving an
// orphaned row.
func CreateReservation(ctx context.Context, input *NewReservation) (*models.Reservation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewValidationError("business id is required")
	}

	if err := utils.ValidateResourceId[models.Customer](ctx, businessId, input.CustomerId); err != nil {
		if err == utils.ErrorRecordNotFound {
			return nil, utils.NewValidationError("customer not found")
		}
		return nil, utils.NewStoreError("validate customer", err)
	}
	if err := utils.ValidateResourceId[models.Professional](ctx, businessId, input.ProfessionalId); err != nil {
		if err == utils.ErrorRecordNotFound {
			return nil, utils.NewValidationError("professional not found")
		}
		return nil, utils.NewStoreError("validate professional", err)
	}

	services, err := models.GetActiveServices(ctx, businessId, input.ServiceIds)
	if err != nil {
		return nil, utils.NewStoreError("load services", err)
	}
	if len(services) != len(utils.UniqueSlice(input.ServiceIds)) {
		return nil, utils.NewValidationError("service not found or inactive")
	}

	totalMinutes := 0
	totalPrice := decimal.Zero
	for _, svc := range services {
		totalMinutes += svc.DurationMinutes
		totalPrice = totalPrice.Add(svc.Price)
	}
	if totalMinutes <= 0 {
		totalMinutes = DefaultServiceDurationMinutes
	}

	start := input.StartTime
	end := start.Add(time.Duration(totalMinutes) * time.Minute)

	lock, err := acquireBookingLock(ctx, businessId, input.ProfessionalId)
	if err != nil {
		if utils.IsCollaboratorError(err) {
			// booking must not depend on redis being up
			config.LogError(config.GetLogger(), "workflow", "CreateReservation", "acquire booking lock", nil, err)
		} else {
			return nil, err
		}
	}
	defer releaseBookingLock(lock)

	db := config.GetDB()
	reservation := models.Reservation{
		BusinessId:     businessId,
		CustomerId:     input.CustomerId,
		ProfessionalId: input.ProfessionalId,
		StartTime:      start,
		EndTime:        end,
		Status:         models.ReservationStatusScheduled,
		TotalValue:     totalPrice,
		PaymentStatus:  models.PaymentStatusPending,
	}

	err = db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := acquireSlotLock(conn, businessId, input.ProfessionalId); err != nil {
			return utils.NewStoreError("acquire slot lock", err)
		}
		defer releaseSlotLock(conn, businessId, input.ProfessionalId)

		return conn.Transaction(func(tx *gorm.DB) error {
			count, err := models.CountOverlapping(tx, businessId, input.ProfessionalId, start, end, 0)
			if err != nil {
				return utils.NewStoreError("occupancy check", err)
			}
			if count > 0 {
				return utils.NewValidationError("slot no longer available")
			}

			if err := tx.Create(&reservation).Error; err != nil {
				return utils.NewStoreError("insert reservation", err)
			}

			lines := make([]models.ReservationLine, 0, len(services))
			for _, svc := range services {
				lines = append(lines, models.ReservationLine{
					BusinessId:      businessId,
					ReservationId:   reservation.ID,
					ServiceId:       svc.ID,
					ServiceName:     svc.Name,
					PriceAtBooking:  svc.Price,
					DurationMinutes: svc.DurationMinutes,
				})
			}
			if err := tx.Create(&lines).Error; err != nil {
				// rollback is the compensating action: no orphaned reservation
				return utils.NewStoreError("insert reservation lines", err)
			}
			reservation.Lines = lines

			if err := models.PublishReservationLifecycle(ctx, tx, businessId, reservation.ID, models.ReservationEventActionCreated, &reservation, nil); err != nil {
				return utils.NewStoreError("write outbox record", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return &reservation, nil
}

// CancelReservation marks the row canceled and retains it as audit trail.
func CancelReservation(ctx context.Context, id int) (*models.Reservation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewValidationError("business id is required")
	}

	reservation, err := utils.FetchModel[models.Reservation](ctx, businessId, id, "Lines")
	if err != nil {
		if err == utils.ErrorRecordNotFound {
			return nil, utils.NewValidationError("reservation not found")
		}
		return nil, utils.NewStoreError("load reservation", err)
	}
	if reservation.Status == models.ReservationStatusCanceled {
		return reservation, nil
	}

	oldReservation := *reservation

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Reservation{}).Where("id = ?", reservation.ID).Updates(map[string]interface{}{
			"status":         models.ReservationStatusCanceled,
			"payment_status": models.PaymentStatusCanceled,
		}).Error; err != nil {
			return utils.NewStoreError("cancel reservation", err)
		}
		reservation.Status = models.ReservationStatusCanceled
		reservation.PaymentStatus = models.PaymentStatusCanceled

		return models.PublishReservationLifecycle(ctx, tx, businessId, reservation.ID, models.ReservationEventActionCanceled, reservation, &oldReservation)
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// RescheduleReservation moves an existing booking to a new start, re-running
// the occupancy check at the new slot inside the update transaction.
func RescheduleReservation(ctx context.Context, id int, newStart time.Time) (*models.Reservation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewValidationError("business id is required")
	}

	reservation, err := utils.FetchModel[models.Reservation](ctx, businessId, id, "Lines")
	if err != nil {
		if err == utils.ErrorRecordNotFound {
			return nil, utils.NewValidationError("reservation not found")
		}
		return nil, utils.NewStoreError("load reservation", err)
	}
	if !reservation.Status.OccupiesSlot() {
		return nil, utils.NewValidationError("reservation is not active")
	}

	totalMinutes := 0
	for _, line := range reservation.Lines {
		totalMinutes += line.DurationMinutes
	}
	if totalMinutes <= 0 {
		totalMinutes = DefaultServiceDurationMinutes
	}
	newEnd := newStart.Add(time.Duration(totalMinutes) * time.Minute)

	lock, err := acquireBookingLock(ctx, businessId, reservation.ProfessionalId)
	if err != nil {
		if utils.IsCollaboratorError(err) {
			config.LogError(config.GetLogger(), "workflow", "RescheduleReservation", "acquire booking lock", nil, err)
		} else {
			return nil, err
		}
	}
	defer releaseBookingLock(lock)

	oldReservation := *reservation

	db := config.GetDB()
	err = db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := acquireSlotLock(conn, businessId, reservation.ProfessionalId); err != nil {
			return utils.NewStoreError("acquire slot lock", err)
		}
		defer releaseSlotLock(conn, businessId, reservation.ProfessionalId)

		return conn.Transaction(func(tx *gorm.DB) error {
			count, err := models.CountOverlapping(tx, businessId, reservation.ProfessionalId, newStart, newEnd, reservation.ID)
			if err != nil {
				return utils.NewStoreError("occupancy check", err)
			}
			if count > 0 {
				return utils.NewValidationError("slot no longer available")
			}

			if err := tx.Model(&models.Reservation{}).Where("id = ?", reservation.ID).Updates(map[string]interface{}{
				"start_time": newStart,
				"end_time":   newEnd,
			}).Error; err != nil {
				return utils.NewStoreError("reschedule reservation", err)
			}
			reservation.StartTime = newStart
			reservation.EndTime = newEnd

			return models.PublishReservationLifecycle(ctx, tx, businessId, reservation.ID, models.ReservationEventActionUpdated, reservation, &oldReservation)
		})
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}
