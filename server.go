package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/trimtech/booking_backend/calsync"
	"bitbucket.org/trimtech/booking_backend/config"
	"bitbucket.org/trimtech/booking_backend/middlewares"
	"bitbucket.org/trimtech/booking_backend/models"
	"bitbucket.org/trimtech/booking_backend/notify"
	"bitbucket.org/trimtech/booking_backend/utils"
	"bitbucket.org/trimtech/booking_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// RateLimiter is a fixed-window per-IP limiter backed by Redis.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	if rl.client == nil {
		c.Next()
		return
	}
	key := "ratelimit:" + c.ClientIP()
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		// Redis down must not take the API down with it.
		c.Next()
		return
	}
	if count == 1 {
		rl.client.Expire(c.Request.Context(), key, rl.window)
	}
	if count > rl.limit {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		c.Abort()
		return
	}
	c.Next()
}

// errorResponse maps the error taxonomy onto HTTP statuses.
func errorResponse(c *gin.Context, err error) {
	switch {
	case utils.IsValidationError(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	case utils.IsCollaboratorError(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func bindingError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"errors": utils.BindingErrorMap(err)})
}

func createBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewBusiness
		if err := c.ShouldBindJSON(&input); err != nil {
			bindingError(c, err)
			return
		}
		business, err := models.CreateBusiness(c.Request.Context(), &input)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusCreated, business)
	}
}

func getBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		business, err := models.GetBusinessById(c.Request.Context(), businessId)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, business)
	}
}

type updateHoursRequest struct {
	OpeningHour            string `json:"opening_hour" binding:"required"`
	ClosingHour            string `json:"closing_hour" binding:"required"`
	SlotGranularityMinutes int    `json:"slot_granularity_minutes" binding:"required,gt=0"`
}

func updateBusinessHoursHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateHoursRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindingError(c, err)
			return
		}
		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		business, err := models.UpdateBusinessHours(c.Request.Context(), businessId, req.OpeningHour, req.ClosingHour, req.SlotGranularityMinutes)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, business)
	}
}

func createCustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCustomer
		if err := c.ShouldBindJSON(&input); err != nil {
			bindingError(c, err)
			return
		}
		customer, err := models.CreateCustomer(c.Request.Context(), &input)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusCreated, customer)
	}
}

func createProfessionalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewProfessional
		if err := c.ShouldBindJSON(&input); err != nil {
			bindingError(c, err)
			return
		}
		professional, err := models.CreateProfessional(c.Request.Context(), &input)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusCreated, professional)
	}
}

func listProfessionalsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var name *string
		if v := c.Query("name"); v != "" {
			name = &v
		}
		professionals, err := models.GetProfessionals(c.Request.Context(), name)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, professionals)
	}
}

func createServiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewService
		if err := c.ShouldBindJSON(&input); err != nil {
			bindingError(c, err)
			return
		}
		service, err := models.CreateService(c.Request.Context(), &input)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusCreated, service)
	}
}

func listServicesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var name *string
		if v := c.Query("name"); v != "" {
			name = &v
		}
		services, err := models.GetServices(c.Request.Context(), name)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, services)
	}
}

func updateServiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		var input models.NewService
		if err := c.ShouldBindJSON(&input); err != nil {
			bindingError(c, err)
			return
		}
		service, err := models.UpdateService(c.Request.Context(), id, &input)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, service)
	}
}

// availabilityHandler returns the slot grid for one professional on one day.
// Duration comes from the requested services; duration_minutes overrides when
// no services are given.
func availabilityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		professionalId, err := strconv.Atoi(c.Query("professional_id"))
		if err != nil || professionalId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "professional_id is required"})
			return
		}
		date, err := time.Parse("2006-01-02", c.Query("date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}

		duration := 0
		if raw := c.Query("service_ids"); raw != "" {
			businessId, _ := utils.GetBusinessIdFromContext(ctx)
			var serviceIds []int
			for _, part := range strings.Split(raw, ",") {
				id, err := strconv.Atoi(strings.TrimSpace(part))
				if err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "service_ids must be a comma-separated list of ids"})
					return
				}
				serviceIds = append(serviceIds, id)
			}
			services, err := models.GetActiveServices(ctx, businessId, serviceIds)
			if err != nil {
				errorResponse(c, err)
				return
			}
			if len(services) != len(utils.UniqueSlice(serviceIds)) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "one or more services are unknown or inactive"})
				return
			}
			for _, s := range services {
				duration += s.DurationMinutes
			}
		} else if v := c.Query("duration_minutes"); v != "" {
			duration, err = strconv.Atoi(v)
			if err != nil || duration <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "duration_minutes must be a positive integer"})
				return
			}
		}

		slots, err := workflow.AvailableSlots(ctx, professionalId, date, duration)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"slots": slots})
	}
}

func createReservationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input workflow.NewReservation
		if err := c.ShouldBindJSON(&input); err != nil {
			bindingError(c, err)
			return
		}
		reservation, err := workflow.CreateReservation(c.Request.Context(), &input)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusCreated, reservation)
	}
}

func getReservationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		reservation, err := models.GetReservation(c.Request.Context(), id)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, reservation)
	}
}

func cancelReservationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		reservation, err := workflow.CancelReservation(c.Request.Context(), id)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, reservation)
	}
}

type rescheduleRequest struct {
	StartTime time.Time `json:"start_time" binding:"required"`
}

func rescheduleReservationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		var req rescheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindingError(c, err)
			return
		}
		reservation, err := workflow.RescheduleReservation(c.Request.Context(), id, req.StartTime)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, reservation)
	}
}

type newPushSubscriptionRequest struct {
	UserId   int    `json:"user_id" binding:"required"`
	Endpoint string `json:"endpoint" binding:"required"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func createPushSubscriptionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req newPushSubscriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindingError(c, err)
			return
		}
		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		sub, err := models.CreatePushSubscription(c.Request.Context(), businessId, req.UserId, req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusCreated, sub)
	}
}

func deletePushSubscriptionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		if err := models.DeletePushSubscription(c.Request.Context(), id); err != nil {
			errorResponse(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func listSyncConflictsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		conflicts, err := models.GetPendingSyncConflicts(c.Request.Context(), businessId)
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, conflicts)
	}
}

type resolveConflictRequest struct {
	Resolution string              `json:"resolution" binding:"required,oneof=keep_local keep_remote merge"`
	Fields     calsync.MergeFields `json:"fields"`
}

func resolveSyncConflictHandler(api calsync.CalendarAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		if api == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "calendar integration is not configured"})
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		var req resolveConflictRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindingError(c, err)
			return
		}

		ctx := c.Request.Context()
		switch req.Resolution {
		case "keep_local":
			err = calsync.ResolveKeepLocal(ctx, api, id)
		case "keep_remote":
			err = calsync.ResolveKeepRemote(ctx, api, id)
		case "merge":
			err = calsync.ResolveMerge(ctx, api, id, req.Fields)
		}
		if err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conflict_id": id, "resolution": req.Resolution})
	}
}

func validateCalendarHandler(api calsync.CalendarAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		if api == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "calendar integration is not configured"})
			return
		}
		if err := calsync.ValidateConnection(c.Request.Context(), api); err != nil {
			errorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// calendarReconcileHandler is the scheduler entry point for the periodic
// drift sweep. Per-reservation failures are counted, never fatal.
func calendarReconcileHandler(api calsync.CalendarAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		if api == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "calendar integration is not configured"})
			return
		}
		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		result := calsync.ReconcileAll(c.Request.Context(), api, businessId)
		c.JSON(http.StatusOK, result)
	}
}

func notificationSweepHandler(dispatcher *notify.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := dispatcher.RunSweepOnce(c.Request.Context())
		c.JSON(http.StatusOK, result)
	}
}

type outboxReplayRequest struct {
	BusinessId string `json:"business_id"`
	RecordId   int    `json:"record_id"`
}

// outboxReplayHandler re-queues a DEAD or FAILED outbox record for publishing.
func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.BusinessId == "" || req.RecordId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_id and record_id are required"})
			return
		}

		db := config.GetDB()
		now := time.Now().UTC()
		if err := db.WithContext(c.Request.Context()).
			Model(&models.ReservationEventRecord{}).
			Where("id = ? AND business_id = ?", req.RecordId, req.BusinessId).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusFailed,
				"next_attempt_at":    &now,
				"locked_at":          nil,
				"locked_by":          nil,
				"last_publish_error": nil,
			}).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"business_id":     req.BusinessId,
			"record_id":       req.RecordId,
			"publish_status":  models.OutboxPublishStatusFailed,
			"next_attempt_at": now.Format(time.RFC3339Nano),
		})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist via CORS_ALLOWED_ORIGINS.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("x-business-id", "x-user-id", "x-correlation-id", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting.
	// Env: RATE_LIMIT_ENABLED, RATE_LIMIT_WINDOW_SECONDS, RATE_LIMIT_MAX_REQUESTS.
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(config.GetRedisDB(), limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.BusinessMiddleware(
		"/healthz",
		"/businesses",
		"/pubsub/reservations",
		"/pubsub/calendar",
		"/internal/ops/outbox/replay",
	))
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	// External collaborators. A missing env config disables the feature, not
	// the whole service.
	calendarAPI, err := calsync.NewCalendarClient()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "calsync"}).Warn("calendar integration disabled: " + err.Error())
		calendarAPI = nil
	}
	pushGateway, err := notify.NewPushGateway()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "notify"}).Warn("push gateway disabled: " + err.Error())
		pushGateway = nil
	}
	messageGateway, err := notify.NewMessageGateway()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "notify"}).Warn("message gateway disabled: " + err.Error())
		messageGateway = nil
	}
	dispatcher := notify.NewDispatcher(pushGateway, messageGateway, logger)

	r.POST("/businesses", createBusinessHandler())
	r.GET("/business", getBusinessHandler())
	r.PUT("/business/hours", updateBusinessHoursHandler())

	r.POST("/customers", createCustomerHandler())
	r.POST("/professionals", createProfessionalHandler())
	r.GET("/professionals", listProfessionalsHandler())
	r.POST("/services", createServiceHandler())
	r.GET("/services", listServicesHandler())
	r.PUT("/services/:id", updateServiceHandler())

	r.GET("/availability", availabilityHandler())
	r.POST("/reservations", createReservationHandler())
	r.GET("/reservations/:id", getReservationHandler())
	r.POST("/reservations/:id/cancel", cancelReservationHandler())
	r.POST("/reservations/:id/reschedule", rescheduleReservationHandler())

	r.POST("/push-subscriptions", createPushSubscriptionHandler())
	r.DELETE("/push-subscriptions/:id", deletePushSubscriptionHandler())

	r.GET("/sync/conflicts", listSyncConflictsHandler())
	r.POST("/sync/conflicts/:id/resolve", resolveSyncConflictHandler(calendarAPI))
	r.POST("/sync/validate", validateCalendarHandler(calendarAPI))

	// Scheduler entry points (Cloud Scheduler hits these on a cron).
	r.POST("/jobs/calendar-reconcile", calendarReconcileHandler(calendarAPI))
	r.POST("/jobs/notification-sweep", notificationSweepHandler(dispatcher))

	// Pub/Sub push subscriptions.
	r.POST("/pubsub/reservations", dispatcher.PubSubPushHandler())
	r.POST("/pubsub/calendar", calsync.PubSubPushHandler(calendarAPI))

	// Ops tooling: replay outbox records that were marked DEAD/FAILED.
	r.POST("/internal/ops/outbox/replay", outboxReplayHandler())

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running it as a
	// separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Start the outbox dispatcher (publishes AFTER commit).
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go workflow.NewOutboxDispatcher(db, logger).Run(dispatcherCtx)

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while draining.
	cancelDispatcher()

	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger logs only requests that recorded errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
