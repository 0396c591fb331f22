package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/trimtech/booking_backend/config"
	"bitbucket.org/trimtech/booking_backend/models"
	"bitbucket.org/trimtech/booking_backend/notify"
	"bitbucket.org/trimtech/booking_backend/utils"
	"bitbucket.org/trimtech/booking_backend/workflow"
	"github.com/shopspring/decimal"
)

// End-to-end booking lifecycle against real MySQL + Redis:
// double-booking is rejected, cancel frees the slot, reschedule re-checks
// occupancy, and every committed write leaves an outbox record.
func TestBookingLifecycle_DoubleBookingAndCancel(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "booking_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:                   "Lifecycle Salon",
		Timezone:               "UTC",
		OpeningHour:            "09:00",
		ClosingHour:            "18:00",
		SlotGranularityMinutes: 30,
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	ctx = utils.SetBusinessIdInContext(ctx, biz.ID.String())

	pro, err := models.CreateProfessional(ctx, &models.NewProfessional{Name: "Marta"})
	if err != nil {
		t.Fatalf("CreateProfessional: %v", err)
	}
	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{Name: "Ana", Phone: "+34600000001"})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	cut, err := models.CreateService(ctx, &models.NewService{Name: "Haircut", DurationMinutes: 30, Price: decimal.NewFromInt(25)})
	if err != nil {
		t.Fatalf("CreateService: %v", err)
	}

	tomorrow := time.Now().UTC().AddDate(0, 0, 1)
	start := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 10, 0, 0, 0, time.UTC)

	first, err := workflow.CreateReservation(ctx, &workflow.NewReservation{
		CustomerId:     customer.ID,
		ProfessionalId: pro.ID,
		ServiceIds:     []int{cut.ID},
		StartTime:      start,
	})
	if err != nil {
		t.Fatalf("first CreateReservation: %v", err)
	}
	if !first.EndTime.Equal(start.Add(30 * time.Minute)) {
		t.Fatalf("end time = %s, want start + 30min", first.EndTime)
	}

	// Same slot again: the occupancy re-check must reject it.
	_, err = workflow.CreateReservation(ctx, &workflow.NewReservation{
		CustomerId:     customer.ID,
		ProfessionalId: pro.ID,
		ServiceIds:     []int{cut.ID},
		StartTime:      start,
	})
	if !utils.IsValidationError(err) {
		t.Fatalf("double booking must fail validation, got %v", err)
	}

	// Back-to-back is fine.
	second, err := workflow.CreateReservation(ctx, &workflow.NewReservation{
		CustomerId:     customer.ID,
		ProfessionalId: pro.ID,
		ServiceIds:     []int{cut.ID},
		StartTime:      start.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("adjacent CreateReservation: %v", err)
	}

	// The availability grid reflects both bookings.
	slots, err := workflow.AvailableSlots(ctx, pro.ID, start, 30)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	for _, s := range slots {
		if s.Time.Equal(start) && s.Available {
			t.Error("booked slot still shows as available")
		}
	}

	// Rescheduling onto the neighbor must fail; its own slot is excluded
	// from the overlap count.
	if _, err := workflow.RescheduleReservation(ctx, first.ID, second.StartTime); !utils.IsValidationError(err) {
		t.Fatalf("reschedule onto an occupied slot must fail validation, got %v", err)
	}

	// Cancel frees the slot and is idempotent.
	canceled, err := workflow.CancelReservation(ctx, first.ID)
	if err != nil {
		t.Fatalf("CancelReservation: %v", err)
	}
	if canceled.Status != models.ReservationStatusCanceled {
		t.Fatalf("status = %s, want canceled", canceled.Status)
	}
	if _, err := workflow.CancelReservation(ctx, first.ID); err != nil {
		t.Fatalf("repeated cancel must be a no-op, got %v", err)
	}

	if _, err := workflow.CreateReservation(ctx, &workflow.NewReservation{
		CustomerId:     customer.ID,
		ProfessionalId: pro.ID,
		ServiceIds:     []int{cut.ID},
		StartTime:      start,
	}); err != nil {
		t.Fatalf("rebooking a canceled slot must succeed, got %v", err)
	}

	// Every committed write left an outbox record.
	db := config.GetDB()
	var outboxCount int64
	if err := db.WithContext(ctx).Model(&models.ReservationEventRecord{}).
		Where("business_id = ?", biz.ID.String()).Count(&outboxCount).Error; err != nil {
		t.Fatalf("count outbox records: %v", err)
	}
	// 3 creates + 1 cancel; the repeated cancel wrote nothing.
	if outboxCount != 4 {
		t.Fatalf("outbox records = %d, want 4", outboxCount)
	}

	// A pending reminder dies with its reservation: cancel before the
	// reminder fires, then a sweep at its due time must deliver nothing.
	dispatcher := notify.NewDispatcher(nil, nil, config.GetLogger())
	farStart := start.AddDate(0, 0, 2)
	future, err := workflow.CreateReservation(ctx, &workflow.NewReservation{
		CustomerId:     customer.ID,
		ProfessionalId: pro.ID,
		ServiceIds:     []int{cut.ID},
		StartTime:      farStart,
	})
	if err != nil {
		t.Fatalf("future CreateReservation: %v", err)
	}
	if err := dispatcher.HandleReservationEvent(ctx, config.ReservationEvent{
		BusinessId:    biz.ID.String(),
		ReservationId: future.ID,
		Action:        string(models.ReservationEventActionCreated),
	}); err != nil {
		t.Fatalf("handle created event: %v", err)
	}

	var pendingReminders int64
	if err := db.WithContext(ctx).Model(&models.NotificationTask{}).
		Where("reservation_id = ? AND channel = ? AND sent = 0", future.ID, models.NotificationChannelReminder).
		Count(&pendingReminders).Error; err != nil {
		t.Fatalf("count pending reminders: %v", err)
	}
	if pendingReminders != 1 {
		t.Fatalf("pending reminders = %d, want 1", pendingReminders)
	}

	// Bring the reminder due, then cancel before any sweep runs.
	if err := db.WithContext(ctx).Model(&models.NotificationTask{}).
		Where("reservation_id = ? AND channel = ?", future.ID, models.NotificationChannelReminder).
		Update("scheduled_for", time.Now().UTC().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("backdate reminder: %v", err)
	}
	if _, err := workflow.CancelReservation(ctx, future.ID); err != nil {
		t.Fatalf("cancel future reservation: %v", err)
	}
	if err := dispatcher.HandleReservationEvent(ctx, config.ReservationEvent{
		BusinessId:    biz.ID.String(),
		ReservationId: future.ID,
		Action:        string(models.ReservationEventActionCanceled),
	}); err != nil {
		t.Fatalf("handle canceled event: %v", err)
	}

	sweep := dispatcher.RunSweepOnce(ctx)
	if sweep.Total != 0 || sweep.Sent != 0 {
		t.Fatalf("sweep after cancel = %+v, want nothing dispatched", sweep)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("booking-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("booking-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=booking_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
