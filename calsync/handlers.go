package calsync

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"bitbucket.org/trimtech/booking_backend/config"
	"bitbucket.org/trimtech/booking_backend/utils"
	"github.com/gin-gonic/gin"
)

// PubSubPushHandler consumes reservation lifecycle events pushed by the
// Pub/Sub subscription and syncs the affected reservation. Malformed
// envelopes are acked (204) so they do not redeliver forever.
func PubSubPushHandler(api CalendarAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		if api == nil || !envBoolDefault("ENABLE_CALENDAR_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var event config.ReservationEvent
		if err := json.Unmarshal(envelope.Message.Data, &event); err != nil {
			c.Status(204)
			return
		}
		if event.ReservationId == 0 || event.BusinessId == "" {
			c.Status(204)
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), event.BusinessId)
		ctx = utils.SetCorrelationIdInContext(ctx, event.CorrelationId)
		if _, err := SyncReservation(ctx, api, event.ReservationId); err != nil {
			config.LogError(config.GetLogger(), "calsync", "PubSubPushHandler", "sync reservation", map[string]interface{}{
				"reservation_id": event.ReservationId,
				"action":         event.Action,
			}, err)
			if utils.IsStoreError(err) {
				// nack so the subscription retries; collaborator errors retry
				// via the next reconcile run instead
				c.Status(500)
				return
			}
		}
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
