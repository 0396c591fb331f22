package calsync

import (
	"context"
	"errors"

	"bitbucket.org/trimtech/booking_backend/config"
	"bitbucket.org/trimtech/booking_backend/models"
	"bitbucket.org/trimtech/booking_backend/utils"
	"gorm.io/gorm"
)

// Conflict resolution. Each policy is terminal: applying it deletes the
// pending SyncConflict row.

func fetchPendingConflict(ctx context.Context, conflictId int) (*models.SyncConflict, *models.Reservation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, nil, utils.NewValidationError("business id is required")
	}

	conflict, err := utils.FetchModel[models.SyncConflict](ctx, businessId, conflictId)
	if err != nil {
		return nil, nil, utils.NewValidationError("conflict not found")
	}
	if conflict.Resolution != models.SyncResolutionPending {
		return nil, nil, utils.NewValidationError("conflict already resolved")
	}
	reservation, err := utils.FetchModel[models.Reservation](ctx, businessId, conflict.ReservationId)
	if err != nil {
		return nil, nil, utils.NewStoreError("load reservation", err)
	}
	return conflict, reservation, nil
}

func deleteConflict(ctx context.Context, tx *gorm.DB, conflictId int) error {
	return tx.WithContext(ctx).Delete(&models.SyncConflict{}, conflictId).Error
}

// ResolveKeepLocal re-pushes the local version, overwriting the remote event.
func ResolveKeepLocal(ctx context.Context, api CalendarAPI, conflictId int) error {
	conflict, reservation, err := fetchPendingConflict(ctx, conflictId)
	if err != nil {
		return err
	}

	local, err := buildEvent(ctx, reservation)
	if err != nil {
		return utils.NewStoreError("build event", err)
	}

	eventId := utils.DereferencePtr(reservation.ExternalEventId)
	if eventId == "" {
		eventId = conflict.ExternalEventId
	}
	if eventId == "" {
		eventId, err = api.CreateEvent(ctx, local)
		if err != nil {
			return utils.NewCollaboratorError("calendar", err)
		}
	} else if err := api.UpdateEvent(ctx, eventId, local); err != nil {
		if errors.Is(err, ErrEventNotFound) {
			eventId, err = api.CreateEvent(ctx, local)
			if err != nil {
				return utils.NewCollaboratorError("calendar", err)
			}
		} else {
			return utils.NewCollaboratorError("calendar", err)
		}
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Reservation{}).Where("id = ?", reservation.ID).Updates(map[string]interface{}{
			"external_event_id": eventId,
			"synced_hash":       contentHash(local),
		}).Error; err != nil {
			return err
		}
		return deleteConflict(ctx, tx, conflict.ID)
	})
	if err != nil {
		return utils.NewStoreError("resolve keep_local", err)
	}
	return nil
}

// ResolveKeepRemote pulls the remote version into the local reservation. A
// remotely deleted event cancels the local booking.
func ResolveKeepRemote(ctx context.Context, api CalendarAPI, conflictId int) error {
	conflict, reservation, err := fetchPendingConflict(ctx, conflictId)
	if err != nil {
		return err
	}

	db := config.GetDB()

	if len(conflict.RemoteVersionJSON) == 0 {
		// remote side is gone; the local booking follows it
		oldReservation := *reservation
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Reservation{}).Where("id = ?", reservation.ID).Updates(map[string]interface{}{
				"status":            models.ReservationStatusCanceled,
				"payment_status":    models.PaymentStatusCanceled,
				"external_event_id": nil,
				"synced_hash":       nil,
			}).Error; err != nil {
				return err
			}
			reservation.Status = models.ReservationStatusCanceled
			if err := models.PublishReservationLifecycle(ctx, tx, reservation.BusinessId, reservation.ID, models.ReservationEventActionCanceled, reservation, &oldReservation); err != nil {
				return err
			}
			return deleteConflict(ctx, tx, conflict.ID)
		})
		if err != nil {
			return utils.NewStoreError("resolve keep_remote", err)
		}
		return nil
	}

	remote, err := decodeEvent(conflict.RemoteVersionJSON)
	if err != nil {
		return utils.NewStoreError("decode remote version", err)
	}

	oldReservation := *reservation
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Reservation{}).Where("id = ?", reservation.ID).Updates(map[string]interface{}{
			"start_time":  remote.StartUtc,
			"end_time":    remote.EndUtc,
			"synced_hash": contentHash(remote),
		}).Error; err != nil {
			return err
		}
		reservation.StartTime = remote.StartUtc
		reservation.EndTime = remote.EndUtc
		if err := models.PublishReservationLifecycle(ctx, tx, reservation.BusinessId, reservation.ID, models.ReservationEventActionUpdated, reservation, &oldReservation); err != nil {
			return err
		}
		return deleteConflict(ctx, tx, conflict.ID)
	})
	if err != nil {
		return utils.NewStoreError("resolve keep_remote", err)
	}
	return nil
}

// ResolveMerge applies caller-supplied reconciled fields to the local
// reservation and pushes the merged content remote.
func ResolveMerge(ctx context.Context, api CalendarAPI, conflictId int, fields MergeFields) error {
	conflict, reservation, err := fetchPendingConflict(ctx, conflictId)
	if err != nil {
		return err
	}

	oldReservation := *reservation
	newStart := reservation.StartTime
	newEnd := reservation.EndTime
	if fields.StartTime != nil {
		newStart = *fields.StartTime
	}
	if fields.EndTime != nil {
		newEnd = *fields.EndTime
	}
	if !newEnd.After(newStart) {
		return utils.NewValidationError("merged end time must be after start time")
	}
	reservation.StartTime = newStart
	reservation.EndTime = newEnd

	merged, err := buildEvent(ctx, reservation)
	if err != nil {
		return utils.NewStoreError("build event", err)
	}
	if fields.Title != nil {
		merged.Title = *fields.Title
	}
	if fields.Location != nil {
		merged.Location = *fields.Location
	}

	eventId := utils.DereferencePtr(reservation.ExternalEventId)
	if eventId == "" {
		eventId = conflict.ExternalEventId
	}
	if eventId == "" {
		eventId, err = api.CreateEvent(ctx, merged)
		if err != nil {
			return utils.NewCollaboratorError("calendar", err)
		}
	} else if err := api.UpdateEvent(ctx, eventId, merged); err != nil {
		return utils.NewCollaboratorError("calendar", err)
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Reservation{}).Where("id = ?", reservation.ID).Updates(map[string]interface{}{
			"start_time":        newStart,
			"end_time":          newEnd,
			"external_event_id": eventId,
			"synced_hash":       contentHash(merged),
		}).Error; err != nil {
			return err
		}
		if err := models.PublishReservationLifecycle(ctx, tx, reservation.BusinessId, reservation.ID, models.ReservationEventActionUpdated, reservation, &oldReservation); err != nil {
			return err
		}
		return deleteConflict(ctx, tx, conflict.ID)
	})
	if err != nil {
		return utils.NewStoreError("resolve merge", err)
	}
	return nil
}
