package models_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/trimtech/booking_backend/config"
	"bitbucket.org/trimtech/booking_backend/models"
	"bitbucket.org/trimtech/booking_backend/utils"
	"bitbucket.org/trimtech/booking_backend/workflow"
	"github.com/shopspring/decimal"
)

func seedBookingFixtures(t *testing.T, ctx context.Context) (context.Context, *models.Professional, *models.Customer, *models.Service) {
	t.Helper()

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:                   "Atomicity Salon",
		Timezone:               "UTC",
		OpeningHour:            "09:00",
		ClosingHour:            "18:00",
		SlotGranularityMinutes: 30,
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	ctx = utils.SetBusinessIdInContext(ctx, biz.ID.String())

	pro, err := models.CreateProfessional(ctx, &models.NewProfessional{Name: "Jon"})
	if err != nil {
		t.Fatalf("CreateProfessional: %v", err)
	}
	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{Name: "Ana", Phone: "+34600000002"})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	cut, err := models.CreateService(ctx, &models.NewService{Name: "Haircut", DurationMinutes: 30, Price: decimal.NewFromInt(25)})
	if err != nil {
		t.Fatalf("CreateService: %v", err)
	}
	return ctx, pro, customer, cut
}

// Booking correctness must not depend on redis: with no redis configured,
// the per-professional advisory lock still serializes the occupancy check
// and insert, so exactly one of the concurrent requests wins the slot.
func TestBookingConcurrency_SingleWinnerWithoutRedis(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "booking_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()

	if config.GetRedisLock() != nil {
		t.Fatal("redis must be unconfigured for this test")
	}

	ctx, pro, customer, cut := seedBookingFixtures(t, context.Background())

	tomorrow := time.Now().UTC().AddDate(0, 0, 1)
	start := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 11, 0, 0, 0, time.UTC)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = workflow.CreateReservation(ctx, &workflow.NewReservation{
				CustomerId:     customer.ID,
				ProfessionalId: pro.ID,
				ServiceIds:     []int{cut.ID},
				StartTime:      start,
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
		case utils.IsValidationError(err):
		default:
			t.Errorf("attempt %d: losers must fail validation, got %v", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}

	bizId, _ := utils.GetBusinessIdFromContext(ctx)
	count, err := models.CountOverlapping(config.GetDB().WithContext(ctx), bizId, pro.ID, start, start.Add(30*time.Minute), 0)
	if err != nil {
		t.Fatalf("CountOverlapping: %v", err)
	}
	if count != 1 {
		t.Fatalf("committed overlapping reservations = %d, want 1", count)
	}
}

// A failed line insert takes the whole booking down: no reservation row, no
// outbox record.
func TestBookingCompensation_FailedLineInsertLeavesNoRow(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "booking_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()

	ctx, pro, customer, cut := seedBookingFixtures(t, context.Background())
	db := config.GetDB()

	// Fault injection: make every line insert fail at the database.
	err := db.Exec("CREATE TRIGGER fail_line_inserts BEFORE INSERT ON reservation_lines FOR EACH ROW SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'injected line insert failure'").Error
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	tomorrow := time.Now().UTC().AddDate(0, 0, 1)
	start := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 12, 0, 0, 0, time.UTC)

	input := &workflow.NewReservation{
		CustomerId:     customer.ID,
		ProfessionalId: pro.ID,
		ServiceIds:     []int{cut.ID},
		StartTime:      start,
	}
	if _, err := workflow.CreateReservation(ctx, input); !utils.IsStoreError(err) {
		t.Fatalf("booking with a failing line insert must return a store error, got %v", err)
	}

	var reservations int64
	if err := db.WithContext(ctx).Model(&models.Reservation{}).
		Where("professional_id = ?", pro.ID).Count(&reservations).Error; err != nil {
		t.Fatalf("count reservations: %v", err)
	}
	if reservations != 0 {
		t.Fatalf("reservation rows = %d, want 0 after rollback", reservations)
	}
	var outbox int64
	if err := db.WithContext(ctx).Model(&models.ReservationEventRecord{}).Count(&outbox).Error; err != nil {
		t.Fatalf("count outbox records: %v", err)
	}
	if outbox != 0 {
		t.Fatalf("outbox records = %d, want 0 after rollback", outbox)
	}

	if err := db.Exec("DROP TRIGGER fail_line_inserts").Error; err != nil {
		t.Fatalf("drop trigger: %v", err)
	}
	if _, err := workflow.CreateReservation(ctx, input); err != nil {
		t.Fatalf("booking after clearing the fault must succeed, got %v", err)
	}
}
