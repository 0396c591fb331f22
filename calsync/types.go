package calsync

import (
	"encoding/json"
	"time"
)

// CalendarEvent is the wire shape of the external calendar service.
type CalendarEvent struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartUtc    time.Time `json:"start_utc"`
	EndUtc      time.Time `json:"end_utc"`
	Location    string    `json:"location,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
}

// ReconcileResult aggregates a bulk run; one failing reservation never aborts
// the batch.
type ReconcileResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// MergeFields carries caller-supplied reconciled values for a merge
// resolution. Nil fields keep the local value.
type MergeFields struct {
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Title     *string    `json:"title"`
	Location  *string    `json:"location"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func decodeEvent(raw []byte) (CalendarEvent, error) {
	var ev CalendarEvent
	err := json.Unmarshal(raw, &ev)
	return ev, err
}
