package notify

import (
	"encoding/json"
	"io"

	"bitbucket.org/trimtech/booking_backend/config"
	"bitbucket.org/trimtech/booking_backend/utils"
	"github.com/gin-gonic/gin"
)

type pubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PubSubPushHandler consumes reservation lifecycle events and drives the
// notification triggers. Malformed envelopes are acked.
func (d *Dispatcher) PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope pubSubPushEnvelope
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
		if err := d.HandleReservationEvent(ctx, event); err != nil {
			config.LogError(config.GetLogger(), "notify", "PubSubPushHandler", "handle event", map[string]interface{}{
				"reservation_id": event.ReservationId,
				"action":         event.Action,
			}, err)
			if utils.IsStoreError(err) {
				c.Status(500)
				return
			}
		}
		c.Status(204)
	}
}
