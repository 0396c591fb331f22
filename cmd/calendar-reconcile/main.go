// calendar-reconcile runs one reconcile pass against the external calendar
// for one business, or for every business when none is given. Useful when the
// scheduler endpoint is unavailable or a manual drift sweep is needed.
//
// Usage:
//
//	CALENDAR_API_BASE_URL=... CALENDAR_API_KEY=... go run ./cmd/calendar-reconcile [business-id]
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/trimtech/booking_backend/calsync"
	"bitbucket.org/trimtech/booking_backend/config"
	"bitbucket.org/trimtech/booking_backend/models"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	api, err := calsync.NewCalendarClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "calendar client: %v\n", err)
		os.Exit(1)
	}
	if err := calsync.ValidateConnection(ctx, api); err != nil {
		fmt.Fprintf(os.Stderr, "calendar connection check failed: %v\n", err)
		os.Exit(1)
	}

	var businessIds []string
	if len(os.Args) > 1 {
		businessIds = os.Args[1:]
	} else {
		var businesses []models.Business
		if err := config.GetDB().WithContext(ctx).Select("id").Find(&businesses).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to list businesses: %v\n", err)
			os.Exit(1)
		}
		for _, b := range businesses {
			businessIds = append(businessIds, b.ID.String())
		}
	}

	exitCode := 0
	for _, businessId := range businessIds {
		result := calsync.ReconcileAll(ctx, api, businessId)
		fmt.Printf("%s: %d synced, %d failed of %d\n", businessId, result.Succeeded, result.Failed, result.Total)
		if result.Failed > 0 {
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}
