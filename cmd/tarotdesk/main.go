package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lvaldez/tarotdesk/internal/audit"
	"github.com/lvaldez/tarotdesk/internal/availability"
	"github.com/lvaldez/tarotdesk/internal/booking"
	"github.com/lvaldez/tarotdesk/internal/consumer"
	"github.com/lvaldez/tarotdesk/internal/handlers"
	"github.com/lvaldez/tarotdesk/internal/inbox"
	"github.com/lvaldez/tarotdesk/internal/notifier"
	"github.com/lvaldez/tarotdesk/internal/outbox"
	"github.com/lvaldez/tarotdesk/internal/reminder"
	"github.com/lvaldez/tarotdesk/internal/storage"
	"github.com/lvaldez/tarotdesk/libs/auth"
	"github.com/lvaldez/tarotdesk/libs/config"
	"github.com/lvaldez/tarotdesk/libs/db"
	"github.com/lvaldez/tarotdesk/libs/httpx"
	"github.com/lvaldez/tarotdesk/libs/kafkax"
	otelx "github.com/lvaldez/tarotdesk/libs/otel"
	"github.com/lvaldez/tarotdesk/libs/runtime"
)

func loadCalendar() (*availability.Calendar, error) {
	tz := config.String("BUSINESS_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}

	defaults := map[time.Weekday]string{
		time.Monday:    "10:00-18:00",
		time.Tuesday:   "10:00-18:00",
		time.Wednesday: "10:00-18:00",
		time.Thursday:  "10:00-18:00",
		time.Friday:    "10:00-18:00",
		time.Saturday:  "",
		time.Sunday:    "",
	}
	envKeys := map[time.Weekday]string{
		time.Monday:    "HOURS_MON",
		time.Tuesday:   "HOURS_TUE",
		time.Wednesday: "HOURS_WED",
		time.Thursday:  "HOURS_THU",
		time.Friday:    "HOURS_FRI",
		time.Saturday:  "HOURS_SAT",
		time.Sunday:    "HOURS_SUN",
	}

	week := make(map[time.Weekday][]availability.MinuteRange, 7)
	for wd, key := range envKeys {
		ranges, err := availability.ParseDayWindows(config.String(key, defaults[wd]))
		if err != nil {
			return nil, err
		}
		week[wd] = ranges
	}

	blackouts := splitCSV(config.String("BLACKOUT_DATES", ""))
	return availability.NewCalendar(loc, week, blackouts), nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

type orderItemPurchased struct {
	OrderItemID     string `json:"order_item_id"`
	ClientID        string `json:"client_id"`
	DurationMinutes int    `json:"duration_minutes"`
}

func main() {
	service := config.String("SERVICE_NAME", "tarotdesk")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if err := storage.Migrate(ctx, pool); err != nil {
		logger.Error("migration failed", "err", err)
		panic(err)
	}

	cal, err := loadCalendar()
	if err != nil {
		logger.Error("invalid business hours config", "err", err)
		panic(err)
	}

	apptRepo := storage.NewAppointmentRepository(pool)
	creditRepo := storage.NewCreditRepository(pool)
	deliveryLog := storage.NewNotificationLog(pool)
	outboxRepo := outbox.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)
	auditRepo := audit.NewRepository(pool)
	reminderRepo := reminder.NewRepository(pool)

	allowedDurations := config.MinuteOffsets(config.String("SESSION_DURATIONS_MINUTES", "30,60"))
	manager := booking.NewManager(apptRepo, creditRepo, outboxRepo, auditRepo, reminderRepo, cal, logger, booking.Config{
		DefaultDuration:    time.Duration(config.Int("DEFAULT_SESSION_MINUTES", 60)) * time.Minute,
		AllowedDurations:   allowedDurations,
		SlotStep:           time.Duration(config.Int("SLOT_STEP_MINUTES", 0)) * time.Minute,
		ClientCancelCutoff: time.Duration(config.Int("CANCEL_CUTOFF_MINUTES", 1440)) * time.Minute,
		ReminderOffsets:    config.MinuteOffsets(config.String("REMINDER_OFFSETS_MINUTES", "1440,60")),
		BookingAttempts:    config.Int("BOOKING_ATTEMPTS", 3),
	})

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	reminderWorker := reminder.NewWorker(pool, reminderRepo, outboxRepo, apptRepo, logger, reminder.WorkerConfig{
		Interval:  time.Duration(config.Int("REMINDER_POLL_SECONDS", 30)) * time.Second,
		BatchSize: 50,
	})
	go reminderWorker.Run(ctx)

	if brokers != "" {
		ordersConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "tarotdesk"),
			Topics:  []string{config.String("ORDERS_TOPIC", "orders.item.purchased.v1")},
		}, func(ctx context.Context, msg kafka.Message) error {
			var evt orderItemPurchased
			if err := json.Unmarshal(msg.Value, &evt); err != nil {
				logger.Error("invalid order event payload", "err", err)
				return nil
			}
			if evt.OrderItemID == "" || evt.ClientID == "" || evt.DurationMinutes <= 0 {
				logger.Error("missing order event fields", "order_item_id", evt.OrderItemID)
				return nil
			}
			tx, err := pool.Begin(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = tx.Rollback(ctx) }()
			if err := creditRepo.Upsert(ctx, tx, storage.SessionCredit{
				OrderItemID:     evt.OrderItemID,
				ClientID:        evt.ClientID,
				DurationMinutes: evt.DurationMinutes,
			}); err != nil {
				return err
			}
			if err := tx.Commit(ctx); err != nil {
				return err
			}
			logger.Info("session credit recorded", "order_item_id", evt.OrderItemID, "minutes", evt.DurationMinutes)
			return nil
		})
		go ordersConsumer.Run(ctx)

		smtpHost := config.String("SMTP_HOST", "mailpit")
		smtpPort := config.String("SMTP_PORT", "1025")
		smtpFrom := config.String("SMTP_FROM", "no-reply@tarotdesk.local")
		emailSender := notifier.NewSMTPSender(smtpHost, smtpPort, smtpFrom)

		var whatsappSender notifier.MessageSender
		if url := config.String("WHATSAPP_WEBHOOK_URL", ""); url != "" {
			whatsappSender = notifier.NewWhatsAppSender(url, config.String("WHATSAPP_WEBHOOK_TOKEN", ""))
		} else {
			whatsappSender = notifier.NewNoopSender()
		}

		n := notifier.New(logger, emailSender, whatsappSender, apptRepo, deliveryLog, cal.Location())
		notifierConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "tarotdesk") + "-notifier",
			Topics: []string{
				outbox.EventReminderRequested,
				outbox.EventAppointmentScheduled,
				outbox.EventAppointmentConfirmed,
				outbox.EventAppointmentRescheduled,
				outbox.EventAppointmentCancelled,
			},
		}, n.Handle)
		go notifierConsumer.Run(ctx)
	} else {
		logger.Warn("kafka brokers not configured; consumers disabled")
	}

	apptHandler := handlers.NewAppointmentHandler(manager, logger)
	adminHandler := handlers.NewAdminHandler(manager, auditRepo, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	clientAuth := httpx.RequireRole(jwtSecret, auth.RoleClient)
	adminAuth := httpx.RequireRole(jwtSecret, auth.RoleAdmin)

	mux.HandleFunc("GET /api/v1/appointments/available-slots", apptHandler.AvailableSlots)
	mux.Handle("POST /api/v1/appointments", clientAuth(http.HandlerFunc(apptHandler.Create)))
	mux.Handle("GET /api/v1/appointments", clientAuth(http.HandlerFunc(apptHandler.ListMine)))
	mux.Handle("GET /api/v1/appointments/{id}", clientAuth(http.HandlerFunc(apptHandler.Get)))
	mux.Handle("POST /api/v1/appointments/{id}/cancel", clientAuth(http.HandlerFunc(apptHandler.Cancel)))

	mux.Handle("GET /api/v1/admin/appointments", adminAuth(http.HandlerFunc(adminHandler.List)))
	mux.Handle("GET /api/v1/admin/appointments/{id}", adminAuth(http.HandlerFunc(adminHandler.Get)))
	mux.Handle("PATCH /api/v1/admin/appointments/{id}", adminAuth(http.HandlerFunc(adminHandler.Update)))
	mux.Handle("PATCH /api/v1/admin/appointments/{id}/status", adminAuth(http.HandlerFunc(adminHandler.PatchStatus)))
	mux.Handle("PATCH /api/v1/admin/appointments/{id}/reschedule", adminAuth(http.HandlerFunc(adminHandler.Reschedule)))
	mux.Handle("GET /api/v1/admin/audit-events", adminAuth(http.HandlerFunc(adminHandler.AuditTrail)))

	var limiter httpx.Middleware
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		limiter = httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT", 120), time.Minute, service).Middleware(logger, true)
	} else {
		limiter = httpx.NewRateLimiter(config.Int("RATE_LIMIT", 120), time.Minute).Middleware()
	}

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitCSV(config.String("CORS_ALLOWED_ORIGINS", "*")),
			AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key"},
		}),
		limiter,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
		httpx.WithRecover(logger),
	)
	handler = otelhttp.NewHandler(handler, service)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
