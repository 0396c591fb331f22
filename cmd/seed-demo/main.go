// seed-demo populates a fresh database with one demo business, a couple of
// professionals, services and customers, and a confirmed reservation for
// tomorrow. Intended for local development only.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-demo
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"bitbucket.org/trimtech/booking_backend/config"
	"bitbucket.org/trimtech/booking_backend/models"
	"bitbucket.org/trimtech/booking_backend/utils"
	"bitbucket.org/trimtech/booking_backend/workflow"
	"github.com/shopspring/decimal"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	business, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:                   "Trim & Tonic",
		Email:                  "hello@trimandtonic.example",
		Timezone:               "Europe/Madrid",
		OpeningHour:            "09:00",
		ClosingHour:            "18:00",
		SlotGranularityMinutes: 30,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create business: %v\n", err)
		os.Exit(1)
	}
	ctx = utils.SetBusinessIdInContext(ctx, business.ID.String())
	fmt.Println("business:", business.ID.String())

	pro, err := models.CreateProfessional(ctx, &models.NewProfessional{Name: "Marta", Email: "marta@trimandtonic.example"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create professional: %v\n", err)
		os.Exit(1)
	}
	if _, err := models.CreateProfessional(ctx, &models.NewProfessional{Name: "Jon"}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create professional: %v\n", err)
		os.Exit(1)
	}

	cut, err := models.CreateService(ctx, &models.NewService{Name: "Haircut", DurationMinutes: 30, Price: decimal.NewFromInt(25)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create service: %v\n", err)
		os.Exit(1)
	}
	color, err := models.CreateService(ctx, &models.NewService{Name: "Coloring", DurationMinutes: 60, Price: decimal.NewFromInt(55)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create service: %v\n", err)
		os.Exit(1)
	}

	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{Name: "Ana", Phone: "+34600000001"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create customer: %v\n", err)
		os.Exit(1)
	}

	hours, err := models.GetBusinessHours(ctx, business.ID.String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load business hours: %v\n", err)
		os.Exit(1)
	}
	tomorrow := time.Now().In(hours.Location()).AddDate(0, 0, 1)
	start, err := hours.OpeningOn(tomorrow)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to compute opening time: %v\n", err)
		os.Exit(1)
	}

	reservation, err := workflow.CreateReservation(ctx, &workflow.NewReservation{
		CustomerId:     customer.ID,
		ProfessionalId: pro.ID,
		ServiceIds:     []int{cut.ID, color.ID},
		StartTime:      start,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create reservation: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("reservation %d: %s - %s\n", reservation.ID, reservation.StartTime.Format(time.RFC3339), reservation.EndTime.Format(time.RFC3339))
}
