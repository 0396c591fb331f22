package notify

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/trimtech/booking_backend/config"
	"bitbucket.org/trimtech/booking_backend/models"
	"bitbucket.org/trimtech/booking_backend/utils"
	"github.com/sirupsen/logrus"
)

// reminders fire this long before the appointment
const ReminderLeadTime = 24 * time.Hour

// Dispatcher turns reservation lifecycle events into outbound messages and
// owns the reminder task table.
type Dispatcher struct {
	Push    PushGateway
	Message MessageGateway
	Logger  *logrus.Logger
}

func NewDispatcher(push PushGateway, message MessageGateway, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{Push: push, Message: message, Logger: logger}
}

// FanOutResult aggregates one multi-endpoint dispatch. Delivered counts
// endpoints that accepted the message; the dispatch as a whole succeeded iff
// at least one did.
type FanOutResult struct {
	Delivered int
	Pruned    int
	Transient int
}

func (r FanOutResult) Succeeded() bool { return r.Delivered > 0 }

// HandleReservationEvent reacts to one lifecycle event. Gateway failures are
// logged and counted; they never propagate into the booking path.
func (d *Dispatcher) HandleReservationEvent(ctx context.Context, event config.ReservationEvent) error {
	ctx = utils.SetBusinessIdInContext(ctx, event.BusinessId)

	reservation, err := utils.FetchModel[models.Reservation](ctx, event.BusinessId, event.ReservationId)
	if err != nil {
		return utils.NewStoreError("load reservation", err)
	}

	switch models.ReservationEventAction(event.Action) {
	case models.ReservationEventActionCreated:
		return d.onCreated(ctx, reservation)
	case models.ReservationEventActionCanceled:
		return d.onCanceled(ctx, reservation)
	case models.ReservationEventActionUpdated:
		return d.onRescheduled(ctx, reservation)
	default:
		return nil
	}
}

func (d *Dispatcher) onCreated(ctx context.Context, r *models.Reservation) error {
	title := "Booking confirmed"
	body := fmt.Sprintf("Your appointment on %s is confirmed.", r.StartTime.Format("Mon, 02 Jan 15:04"))

	d.dispatchImmediate(ctx, r, title, body)

	return d.scheduleReminder(ctx, r)
}

func (d *Dispatcher) onCanceled(ctx context.Context, r *models.Reservation) error {
	title := "Booking canceled"
	body := fmt.Sprintf("Your appointment on %s was canceled.", r.StartTime.Format("Mon, 02 Jan 15:04"))

	d.dispatchImmediate(ctx, r, title, body)

	return SuppressPendingReminders(ctx, r.BusinessId, r.ID)
}

func (d *Dispatcher) onRescheduled(ctx context.Context, r *models.Reservation) error {
	title := "Booking rescheduled"
	body := fmt.Sprintf("Your appointment moved to %s.", r.StartTime.Format("Mon, 02 Jan 15:04"))

	d.dispatchImmediate(ctx, r, title, body)

	return d.rescheduleReminder(ctx, r)
}

// dispatchImmediate sends the confirmation-style notices synchronously at
// trigger time. Each send is recorded as a task row marked sent after the
// attempt; rows are never deleted.
func (d *Dispatcher) dispatchImmediate(ctx context.Context, r *models.Reservation, title, body string) {
	now := time.Now().UTC()
	db := config.GetDB()

	pushResult := d.FanOutPush(ctx, r.BusinessId, r.CustomerId, PushPayload{Title: title, Body: body})
	pushTask := models.NotificationTask{
		BusinessId:    r.BusinessId,
		TargetId:      r.CustomerId,
		ReservationId: r.ID,
		Channel:       models.NotificationChannelPush,
		Title:         title,
		Body:          body,
		ScheduledFor:  now,
		Sent:          true,
		SentAt:        &now,
	}
	if err := db.WithContext(ctx).Create(&pushTask).Error; err != nil {
		config.LogError(d.Logger, "notify", "dispatchImmediate", "record push task", nil, err)
	}
	if !pushResult.Succeeded() {
		d.Logger.WithFields(logrus.Fields{
			"module":         "notify",
			"reservation_id": r.ID,
			"pruned":         pushResult.Pruned,
			"transient":      pushResult.Transient,
		}).Warn("push dispatch reached no endpoint")
	}

	if err := d.sendMessage(ctx, r.BusinessId, r.CustomerId, body); err != nil {
		config.LogError(d.Logger, "notify", "dispatchImmediate", "message gateway", map[string]interface{}{
			"reservation_id": r.ID,
		}, err)
	}
	messageTask := models.NotificationTask{
		BusinessId:    r.BusinessId,
		TargetId:      r.CustomerId,
		ReservationId: r.ID,
		Channel:       models.NotificationChannelMessage,
		Title:         title,
		Body:          body,
		ScheduledFor:  now,
		Sent:          true,
		SentAt:        &now,
	}
	if err := db.WithContext(ctx).Create(&messageTask).Error; err != nil {
		config.LogError(d.Logger, "notify", "dispatchImmediate", "record message task", nil, err)
	}
}

// FanOutPush delivers one payload to every subscription of the user. A
// permanent failure prunes that subscription; a transient one leaves it for
// the next attempt.
func (d *Dispatcher) FanOutPush(ctx context.Context, businessId string, userId int, payload PushPayload) FanOutResult {
	result := FanOutResult{}
	if d.Push == nil {
		return result
	}

	subs, err := models.GetPushSubscriptions(ctx, businessId, userId)
	if err != nil {
		config.LogError(d.Logger, "notify", "FanOutPush", "load subscriptions", nil, err)
		return result
	}

	for _, sub := range subs {
		status, err := d.Push.Deliver(ctx, sub.Endpoint, PushKeys{P256dh: sub.KeysP256dh, Auth: sub.KeysAuth}, payload)
		switch status {
		case DeliverySuccess:
			result.Delivered++
		case DeliveryPermanentFailure:
			result.Pruned++
			if delErr := models.DeletePushSubscription(ctx, sub.ID); delErr != nil {
				config.LogError(d.Logger, "notify", "FanOutPush", "prune subscription", map[string]interface{}{
					"subscription_id": sub.ID,
				}, delErr)
			}
		default:
			result.Transient++
			if err != nil {
				config.LogError(d.Logger, "notify", "FanOutPush", "transient delivery failure", map[string]interface{}{
					"subscription_id": sub.ID,
				}, err)
			}
		}
	}
	return result
}

func (d *Dispatcher) sendMessage(ctx context.Context, businessId string, customerId int, content string) error {
	if d.Message == nil {
		return nil
	}
	customer, err := utils.FetchModel[models.Customer](ctx, businessId, customerId)
	if err != nil {
		return utils.NewStoreError("load customer", err)
	}
	address := customer.Phone
	if address == "" {
		address = customer.Email
	}
	if address == "" {
		return nil
	}
	if err := d.Message.Deliver(ctx, address, content); err != nil {
		return utils.NewCollaboratorError("messaging", err)
	}
	return nil
}

// scheduleReminder books a reminder task at startTime - lead when that
// moment is still in the future.
func (d *Dispatcher) scheduleReminder(ctx context.Context, r *models.Reservation) error {
	remindAt := ReminderTime(r.StartTime)
	if !remindAt.After(time.Now()) {
		return nil
	}

	task := models.NotificationTask{
		BusinessId:    r.BusinessId,
		TargetId:      r.CustomerId,
		ReservationId: r.ID,
		Channel:       models.NotificationChannelReminder,
		Title:         "Appointment reminder",
		Body:          fmt.Sprintf("Reminder: your appointment is on %s.", r.StartTime.Format("Mon, 02 Jan 15:04")),
		ScheduledFor:  remindAt,
		Sent:          false,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&task).Error; err != nil {
		return utils.NewStoreError("create reminder task", err)
	}
	return nil
}

// rescheduleReminder recomputes the pending reminder for a moved booking,
// creating one when none is pending and the new slot is far enough out.
func (d *Dispatcher) rescheduleReminder(ctx context.Context, r *models.Reservation) error {
	remindAt := ReminderTime(r.StartTime)
	db := config.GetDB()

	if !remindAt.After(time.Now()) {
		return SuppressPendingReminders(ctx, r.BusinessId, r.ID)
	}

	res := db.WithContext(ctx).Model(&models.NotificationTask{}).
		Where("business_id = ? AND reservation_id = ? AND channel = ? AND sent = 0",
			r.BusinessId, r.ID, models.NotificationChannelReminder).
		Updates(map[string]interface{}{
			"scheduled_for": remindAt,
			"body":          fmt.Sprintf("Reminder: your appointment is on %s.", r.StartTime.Format("Mon, 02 Jan 15:04")),
			"claimed_at":    nil,
			"claimed_by":    nil,
		})
	if res.Error != nil {
		return utils.NewStoreError("reschedule reminder", res.Error)
	}
	if res.RowsAffected == 0 {
		return d.scheduleReminder(ctx, r)
	}
	return nil
}

// ReminderTime is when the reminder for a start time should fire.
func ReminderTime(startTime time.Time) time.Time {
	return startTime.Add(-ReminderLeadTime)
}

// SuppressPendingReminders marks unsent reminders of a reservation sent so
// the sweep never delivers them. Canceling before the reminder fires means it
// is never delivered.
func SuppressPendingReminders(ctx context.Context, businessId string, reservationId int) error {
	db := config.GetDB()
	now := time.Now().UTC()
	err := db.WithContext(ctx).Model(&models.NotificationTask{}).
		Where("business_id = ? AND reservation_id = ? AND channel = ? AND sent = 0",
			businessId, reservationId, models.NotificationChannelReminder).
		Updates(map[string]interface{}{
			"sent":    true,
			"sent_at": &now,
		}).Error
	if err != nil {
		return utils.NewStoreError("suppress reminders", err)
	}
	return nil
}
