package calsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/trimtech/booking_backend/config"
	"bitbucket.org/trimtech/booking_backend/models"
	"bitbucket.org/trimtech/booking_backend/utils"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

type syncAction int

const (
	syncActionNone syncAction = iota
	syncActionPushUpdate
	syncActionPullRemote
	syncActionConflict
)

// contentHash fingerprints the fields that matter for divergence detection.
// Comparing hashes before any remote write keeps a no-change sync a no-op.
func contentHash(ev CalendarEvent) string {
	payload := strings.Join([]string{
		ev.StartUtc.UTC().Format(time.RFC3339),
		ev.EndUtc.UTC().Format(time.RFC3339),
		ev.Title,
		ev.Location,
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// decideSyncAction compares local and remote against the last synced content.
// Both sides changed means neither may be overwritten blindly.
func decideSyncAction(localHash, remoteHash, lastSyncedHash string) syncAction {
	localChanged := localHash != lastSyncedHash
	remoteChanged := remoteHash != lastSyncedHash
	switch {
	case !localChanged && !remoteChanged:
		return syncActionNone
	case localChanged && !remoteChanged:
		return syncActionPushUpdate
	case !localChanged && remoteChanged:
		return syncActionPullRemote
	default:
		return syncActionConflict
	}
}

func buildEvent(ctx context.Context, r *models.Reservation) (CalendarEvent, error) {
	business, err := models.GetBusinessById(ctx, r.BusinessId)
	if err != nil {
		return CalendarEvent{}, err
	}
	customer, err := utils.FetchModel[models.Customer](ctx, r.BusinessId, r.CustomerId)
	if err != nil {
		return CalendarEvent{}, err
	}
	professional, err := utils.FetchModel[models.Professional](ctx, r.BusinessId, r.ProfessionalId)
	if err != nil {
		return CalendarEvent{}, err
	}

	var lines []models.ReservationLine
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("reservation_id = ?", r.ID).Find(&lines).Error; err != nil {
		return CalendarEvent{}, err
	}
	serviceNames := make([]string, 0, len(lines))
	for _, line := range lines {
		serviceNames = append(serviceNames, line.ServiceName)
	}

	attendees := make([]string, 0, 2)
	if customer.Email != "" {
		attendees = append(attendees, customer.Email)
	}
	if professional.Email != "" {
		attendees = append(attendees, professional.Email)
	}

	return CalendarEvent{
		Title:       fmt.Sprintf("%s - %s", customer.Name, strings.Join(serviceNames, ", ")),
		Description: fmt.Sprintf("Booking with %s", professional.Name),
		StartUtc:    r.StartTime.UTC(),
		EndUtc:      r.EndTime.UTC(),
		Location:    business.Address,
		Attendees:   attendees,
	}, nil
}

// SyncReservation reconciles one reservation with the external calendar.
// It returns whether a remote write was issued.
func SyncReservation(ctx context.Context, api CalendarAPI, reservationId int) (bool, error) {
	return syncReservation(ctx, api, reservationId, nil)
}

func syncReservation(ctx context.Context, api CalendarAPI, reservationId int, prefetched map[string]*CalendarEvent) (bool, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return false, utils.NewValidationError("business id is required")
	}

	r, err := utils.FetchModel[models.Reservation](ctx, businessId, reservationId)
	if err != nil {
		return false, utils.NewStoreError("load reservation", err)
	}

	if !r.Status.OccupiesSlot() {
		return syncCanceled(ctx, api, r)
	}

	// a reservation with an unresolved conflict is frozen until an operator decides
	if _, err := models.GetSyncConflictByReservation(ctx, businessId, r.ID); err == nil {
		return false, nil
	}

	local, err := buildEvent(ctx, r)
	if err != nil {
		return false, utils.NewStoreError("build event", err)
	}
	localHash := contentHash(local)

	db := config.GetDB()

	if r.ExternalEventId == nil || *r.ExternalEventId == "" {
		eventId, err := api.CreateEvent(ctx, local)
		if err != nil {
			return false, utils.NewCollaboratorError("calendar", err)
		}
		err = db.WithContext(ctx).Model(&models.Reservation{}).Where("id = ?", r.ID).Updates(map[string]interface{}{
			"external_event_id": eventId,
			"synced_hash":       localHash,
		}).Error
		if err != nil {
			return true, utils.NewStoreError("save sync state", err)
		}
		return true, nil
	}

	remote, err := lookupRemote(ctx, api, *r.ExternalEventId, prefetched)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			// event vanished remotely; surface as a conflict, do not recreate blindly
			return false, raiseConflict(ctx, r, local, nil)
		}
		return false, utils.NewCollaboratorError("calendar", err)
	}

	lastHash := utils.DereferencePtr(r.SyncedHash)
	switch decideSyncAction(localHash, contentHash(*remote), lastHash) {
	case syncActionNone:
		return false, nil

	case syncActionPushUpdate:
		if err := api.UpdateEvent(ctx, *r.ExternalEventId, local); err != nil {
			return false, utils.NewCollaboratorError("calendar", err)
		}
		err = db.WithContext(ctx).Model(&models.Reservation{}).Where("id = ?", r.ID).
			Update("synced_hash", localHash).Error
		if err != nil {
			return true, utils.NewStoreError("save sync state", err)
		}
		return true, nil

	case syncActionPullRemote:
		return false, applyRemote(ctx, r, *remote)

	default:
		return false, raiseConflict(ctx, r, local, remote)
	}
}

// lookupRemote serves the remote event from a batch prefetch when present,
// falling back to a point fetch. A prefetch miss is not a deletion signal:
// the event may have moved outside the listed window.
func lookupRemote(ctx context.Context, api CalendarAPI, eventId string, prefetched map[string]*CalendarEvent) (*CalendarEvent, error) {
	if ev, ok := prefetched[eventId]; ok {
		return ev, nil
	}
	return api.GetEvent(ctx, eventId)
}

// syncCanceled removes the remote event of a canceled reservation and clears
// the link. create -> sync -> cancel must leave the external event absent and
// external_event_id cleared.
func syncCanceled(ctx context.Context, api CalendarAPI, r *models.Reservation) (bool, error) {
	if r.ExternalEventId == nil || *r.ExternalEventId == "" {
		return false, nil
	}
	if err := api.DeleteEvent(ctx, *r.ExternalEventId); err != nil {
		return false, utils.NewCollaboratorError("calendar", err)
	}
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&models.Reservation{}).Where("id = ?", r.ID).Updates(map[string]interface{}{
		"external_event_id": nil,
		"synced_hash":       nil,
	}).Error
	if err != nil {
		return true, utils.NewStoreError("clear sync state", err)
	}
	return true, nil
}

// applyRemote pulls the remote times into the local reservation. The synced
// hash is set to the applied content so the next run is a no-op; a lifecycle
// "updated" event still fans out so reminders get recomputed.
func applyRemote(ctx context.Context, r *models.Reservation, remote CalendarEvent) error {
	db := config.GetDB()
	oldReservation := *r
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Reservation{}).Where("id = ?", r.ID).Updates(map[string]interface{}{
			"start_time":  remote.StartUtc,
			"end_time":    remote.EndUtc,
			"synced_hash": contentHash(remote),
		}).Error; err != nil {
			return err
		}
		r.StartTime = remote.StartUtc
		r.EndTime = remote.EndUtc
		return models.PublishReservationLifecycle(ctx, tx, r.BusinessId, r.ID, models.ReservationEventActionUpdated, r, &oldReservation)
	})
	if err != nil {
		return utils.NewStoreError("apply remote event", err)
	}
	return nil
}

func raiseConflict(ctx context.Context, r *models.Reservation, local CalendarEvent, remote *CalendarEvent) error {
	localJSON, _ := json.Marshal(local)
	var remoteJSON []byte
	if remote != nil {
		remoteJSON, _ = json.Marshal(remote)
	}

	conflict := models.SyncConflict{
		BusinessId:        r.BusinessId,
		ReservationId:     r.ID,
		ExternalEventId:   utils.DereferencePtr(r.ExternalEventId),
		LocalVersionJSON:  localJSON,
		RemoteVersionJSON: remoteJSON,
		DetectedAt:        time.Now().UTC(),
		Resolution:        models.SyncResolutionPending,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&conflict).Error; err != nil {
		// unique index on reservation_id: a concurrent run already raised it
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return utils.NewStoreError("create sync conflict", err)
	}
	return nil
}

// ReconcileAll walks the active future reservations of a business and syncs
// each. One failure never aborts the batch; the caller gets the aggregate.
func ReconcileAll(ctx context.Context, api CalendarAPI, businessId string) ReconcileResult {
	ctx = utils.SetBusinessIdInContext(ctx, businessId)
	logger := config.GetLogger()

	result := ReconcileResult{}
	reservations, err := models.GetSyncableReservations(ctx, businessId, time.Now())
	if err != nil {
		config.LogError(logger, "calsync", "ReconcileAll", "load reservations", nil, err)
		return result
	}

	result.Total = len(reservations)

	remote := prefetchRemoteEvents(ctx, api, reservations)
	for _, r := range reservations {
		if _, err := syncReservation(ctx, api, r.ID, remote); err != nil {
			result.Failed++
			config.LogError(logger, "calsync", "ReconcileAll", "sync reservation", map[string]interface{}{
				"reservation_id": r.ID,
			}, err)
			continue
		}
		result.Succeeded++
	}
	return result
}

// prefetchRemoteEvents lists the remote window covering the whole batch in
// one call, so the per-reservation sync skips a point fetch for every event
// the listing already returned. A listing failure degrades to point fetches.
func prefetchRemoteEvents(ctx context.Context, api CalendarAPI, reservations []*models.Reservation) map[string]*CalendarEvent {
	if len(reservations) == 0 {
		return nil
	}
	from := reservations[0].StartTime
	to := reservations[0].EndTime
	for _, r := range reservations {
		if r.StartTime.Before(from) {
			from = r.StartTime
		}
		if r.EndTime.After(to) {
			to = r.EndTime
		}
	}

	events, err := api.ListEvents(ctx, from, to)
	if err != nil {
		config.LogError(config.GetLogger(), "calsync", "ReconcileAll", "list remote events", nil, err)
		return nil
	}
	byId := make(map[string]*CalendarEvent, len(events))
	for i := range events {
		if events[i].ID != "" {
			byId[events[i].ID] = &events[i]
		}
	}
	return byId
}

// ValidateConnection creates and immediately deletes a throwaway remote
// event, so configuration errors surface here instead of mid-batch.
func ValidateConnection(ctx context.Context, api CalendarAPI) error {
	now := time.Now().UTC()
	probe := CalendarEvent{
		Title:    "connectivity check",
		StartUtc: now.Add(24 * time.Hour),
		EndUtc:   now.Add(24*time.Hour + 15*time.Minute),
	}
	id, err := api.CreateEvent(ctx, probe)
	if err != nil {
		return utils.NewCollaboratorError("calendar", err)
	}
	if err := api.DeleteEvent(ctx, id); err != nil {
		return utils.NewCollaboratorError("calendar", err)
	}
	return nil
}
