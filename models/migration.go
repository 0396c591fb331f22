package models

import (
	"log"

	"bitbucket.org/trimtech/booking_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{},
		&Professional{}, &Customer{},
		&Service{},
		&Reservation{}, &ReservationLine{},
		&SyncConflict{},
		&NotificationTask{}, &PushSubscription{},
		&ReservationEventRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
