package models

type ReservationStatus string

const (
	ReservationStatusScheduled  ReservationStatus = "scheduled"
	ReservationStatusConfirmed  ReservationStatus = "confirmed"
	ReservationStatusInProgress ReservationStatus = "in_progress"
	ReservationStatusCompleted  ReservationStatus = "completed"
	ReservationStatusCanceled   ReservationStatus = "canceled"
	ReservationStatusNoShow     ReservationStatus = "no_show"
)

// statuses that block a slot; canceled and no_show free the interval
func (s ReservationStatus) OccupiesSlot() bool {
	switch s {
	case ReservationStatusCanceled, ReservationStatusNoShow:
		return false
	default:
		return true
	}
}

// PaymentStatus is set by the external payment collaborator. The scheduling
// core stores it opaquely and prescribes no transition rules, except that
// canceling a reservation also marks its payment canceled.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusCanceled PaymentStatus = "canceled"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type NotificationChannel string

const (
	NotificationChannelPush     NotificationChannel = "push"
	NotificationChannelMessage  NotificationChannel = "message"
	NotificationChannelReminder NotificationChannel = "reminder"
)

type SyncResolution string

const (
	SyncResolutionPending    SyncResolution = "pending"
	SyncResolutionKeepLocal  SyncResolution = "keep_local"
	SyncResolutionKeepRemote SyncResolution = "keep_remote"
	SyncResolutionMerged     SyncResolution = "merged"
)

type ReservationEventAction string

const (
	ReservationEventActionCreated  ReservationEventAction = "created"
	ReservationEventActionUpdated  ReservationEventAction = "updated"
	ReservationEventActionCanceled ReservationEventAction = "canceled"
)

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
	OutboxPublishStatusSent       = "SENT"
)
