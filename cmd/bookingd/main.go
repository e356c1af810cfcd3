package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/umutdemirel/bookable/internal/auth"
	"github.com/umutdemirel/bookable/internal/booking"
	"github.com/umutdemirel/bookable/internal/catalog"
	"github.com/umutdemirel/bookable/internal/handlers"
	"github.com/umutdemirel/bookable/internal/jobs"
	"github.com/umutdemirel/bookable/internal/outbox"
	"github.com/umutdemirel/bookable/internal/storage"
	"github.com/umutdemirel/bookable/libs/config"
	"github.com/umutdemirel/bookable/libs/db"
	"github.com/umutdemirel/bookable/libs/httpx"
	"github.com/umutdemirel/bookable/libs/kafkax"
	otelx "github.com/umutdemirel/bookable/libs/otel"
	"github.com/umutdemirel/bookable/libs/runtime"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "bookingd")
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

	outboxRepo := outbox.NewRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool, outboxRepo)
	userRepo := storage.NewUserRepository(pool)
	catalogRepo := catalog.NewRepository(pool)
	bookingSvc := booking.NewService(bookingRepo, catalogRepo, logger)

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	sweeper := jobs.NewSweeper(pool, logger)
	scheduler := cron.New()
	if err := sweeper.Schedule(ctx, scheduler, config.String("SWEEP_SCHEDULE", "@every 5m")); err != nil {
		logger.Error("sweeper schedule invalid", "err", err)
		panic(err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// The public booking endpoints are unauthenticated, so they get a
	// per-client rate limit. Redis keeps the window shared across
	// replicas; without Redis each instance falls back to a local window.
	rateLimit := config.Int("RATE_LIMIT", 60)
	rateWindow := config.Duration("RATE_WINDOW", time.Minute)
	var publicLimit httpx.Middleware
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer func() { _ = rdb.Close() }()
		publicLimit = httpx.NewRedisRateLimiter(rdb, rateLimit, rateWindow, service).Middleware(logger, true)
	} else {
		publicLimit = httpx.NewRateLimiter(rateLimit, rateWindow).Middleware()
	}

	bookingHandler := handlers.NewBookingHandler(bookingSvc, logger)
	authHandler := handlers.NewAuthHandler(userRepo, jwtSecret, config.Duration("TOKEN_TTL", 24*time.Hour), logger)
	catalogHandler := handlers.NewCatalogHandler(catalogRepo, logger)
	requireAuth := auth.Middleware(jwtSecret)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	public := func(h http.HandlerFunc) http.Handler {
		return publicLimit(h)
	}
	authed := func(h http.HandlerFunc) http.Handler {
		return requireAuth(h)
	}

	mux.Handle("GET /api/v1/public/slots", public(bookingHandler.Slots))
	mux.Handle("GET /api/v1/public/availability", public(bookingHandler.Slots))
	mux.Handle("POST /api/v1/public/book", public(bookingHandler.Book))
	mux.Handle("POST /api/v1/auth/login", public(authHandler.Login))
	mux.Handle("GET /api/v1/auth/me", authed(authHandler.Me))

	mux.Handle("GET /api/v1/appointments", authed(bookingHandler.List))
	mux.Handle("GET /api/v1/appointments/{id}", authed(bookingHandler.Get))
	mux.Handle("PATCH /api/v1/appointments/{id}", authed(bookingHandler.Update))
	mux.Handle("POST /api/v1/appointments/{id}/cancel", authed(bookingHandler.Cancel))

	mux.Handle("GET /api/v1/business/profile", authed(catalogHandler.GetProfile))
	mux.Handle("PUT /api/v1/business/profile", authed(catalogHandler.UpdateProfile))
	mux.Handle("POST /api/v1/services", authed(catalogHandler.CreateService))
	mux.Handle("GET /api/v1/services", authed(catalogHandler.ListServices))
	mux.Handle("POST /api/v1/staff", authed(catalogHandler.CreateStaff))
	mux.Handle("GET /api/v1/staff", authed(catalogHandler.ListStaff))
	mux.Handle("GET /api/v1/staff/{id}/working-hours", authed(catalogHandler.ListWorkingHours))
	mux.Handle("PUT /api/v1/staff/{id}/working-hours", authed(catalogHandler.UpsertWorkingHours))
	mux.Handle("POST /api/v1/staff/{id}/time-off", authed(catalogHandler.CreateTimeOff))
	mux.Handle("GET /api/v1/staff/{id}/time-off", authed(catalogHandler.ListTimeOff))
	mux.Handle("DELETE /api/v1/time-off/{id}", authed(catalogHandler.DeleteTimeOff))

	corsOrigins := config.String("CORS_ALLOWED_ORIGINS", "")
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitCSV(corsOrigins),
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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
