package notify

import (
	"context"
	"time"

	"bitbucket.org/trimtech/booking_backend/config"
	"bitbucket.org/trimtech/booking_backend/models"
	"bitbucket.org/trimtech/booking_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// a claim older than this belongs to a sweep that died mid-dispatch
const sweepClaimTimeout = 2 * time.Minute

// SweepResult aggregates one sweep run; alerting policy stays with the caller.
type SweepResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// RunSweepOnce dispatches every due, unsent scheduled task. It is an
// explicit, idempotent entry point for the external scheduler: the claim is a
// conditional update checked by rows-affected, so concurrent or repeated
// sweeps never double-send a task.
func (d *Dispatcher) RunSweepOnce(ctx context.Context) SweepResult {
	result := SweepResult{}
	db := config.GetDB()
	if db == nil {
		return result
	}

	now := time.Now().UTC()
	staleBefore := now.Add(-sweepClaimTimeout)
	sweepId := uuid.NewString()

	var due []models.NotificationTask
	err := db.WithContext(ctx).
		Where("scheduled_for <= ? AND sent = 0", now).
		Where("claimed_at IS NULL OR claimed_at <= ?", staleBefore).
		Order("scheduled_for ASC").
		Find(&due).Error
	if err != nil {
		config.LogError(d.Logger, "notify", "RunSweepOnce", "load due tasks", nil, err)
		return result
	}

	for i := range due {
		task := &due[i]

		// Atomic claim: only the run whose conditional update hits the row
		// may dispatch it.
		res := db.WithContext(ctx).Model(&models.NotificationTask{}).
			Where("id = ? AND sent = 0", task.ID).
			Where("claimed_at IS NULL OR claimed_at <= ?", staleBefore).
			Updates(map[string]interface{}{
				"claimed_at": &now,
				"claimed_by": sweepId,
			})
		if res.Error != nil {
			config.LogError(d.Logger, "notify", "RunSweepOnce", "claim task", map[string]interface{}{
				"task_id": task.ID,
			}, res.Error)
			result.Failed++
			continue
		}
		if res.RowsAffected == 0 {
			// another sweep got here first
			continue
		}

		result.Total++
		if d.dispatchScheduled(ctx, task) {
			result.Sent++
		} else {
			result.Failed++
		}
	}
	return result
}

// dispatchScheduled attempts one claimed task and returns whether it was
// delivered. The task is marked sent after the attempt unless every endpoint
// failed transiently, in which case the claim is released for the next sweep.
func (d *Dispatcher) dispatchScheduled(ctx context.Context, task *models.NotificationTask) bool {
	ctx = utils.SetBusinessIdInContext(ctx, task.BusinessId)
	db := config.GetDB()

	payload := PushPayload{Title: task.Title, Body: task.Body}
	pushResult := d.FanOutPush(ctx, task.BusinessId, task.TargetId, payload)

	msgErr := d.sendMessage(ctx, task.BusinessId, task.TargetId, task.Body)
	if msgErr != nil {
		config.LogError(d.Logger, "notify", "dispatchScheduled", "message gateway", map[string]interface{}{
			"task_id": task.ID,
		}, msgErr)
	}

	delivered := pushResult.Succeeded() || msgErr == nil
	transientOnly := !delivered && pushResult.Transient > 0

	if transientOnly {
		// leave unsent; release the claim so the next sweep retries
		err := db.WithContext(ctx).Model(&models.NotificationTask{}).
			Where("id = ?", task.ID).
			Updates(map[string]interface{}{
				"claimed_at": nil,
				"claimed_by": nil,
			}).Error
		if err != nil {
			config.LogError(d.Logger, "notify", "dispatchScheduled", "release claim", map[string]interface{}{
				"task_id": task.ID,
			}, err)
		}
		return false
	}

	now := time.Now().UTC()
	err := db.WithContext(ctx).Model(&models.NotificationTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"sent":    true,
			"sent_at": &now,
		}).Error
	if err != nil {
		config.LogError(d.Logger, "notify", "dispatchScheduled", "mark sent", map[string]interface{}{
			"task_id": task.ID,
		}, err)
	}

	if !delivered {
		d.Logger.WithFields(logrus.Fields{
			"module":  "notify",
			"task_id": task.ID,
			"pruned":  pushResult.Pruned,
		}).Warn("scheduled task marked sent after terminal delivery failure")
	}
	return delivered
}
