package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// acquireSlotLock serializes occupancy writes per professional across
// instances using MySQL advisory locks. GET_LOCK is connection-scoped, so
// acquire and release must run on the connection that carries the booking
// transaction, and the lock must stay held until that transaction has
// committed; releasing inside the transaction would let a second booking
// count occupancy before the first row is visible.
func acquireSlotLock(conn *gorm.DB, businessId string, professionalId int) error {
	lockName := fmt.Sprintf("slot:%s:%d", businessId, professionalId)
	var ok int
	if err := conn.Raw("SELECT GET_LOCK(?, 10)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire slot lock for business_id=%s professional_id=%d", businessId, professionalId)
	}
	return nil
}

func releaseSlotLock(conn *gorm.DB, businessId string, professionalId int) {
	lockName := fmt.Sprintf("slot:%s:%d", businessId, professionalId)
	var _ok int
	_ = conn.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
