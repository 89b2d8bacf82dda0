package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/slot-reservation/internal/config"
	"github.com/iliyamo/slot-reservation/internal/database"
	"github.com/iliyamo/slot-reservation/internal/events"
	"github.com/iliyamo/slot-reservation/internal/handler"
	"github.com/iliyamo/slot-reservation/internal/logger"
	"github.com/iliyamo/slot-reservation/internal/middleware"
	"github.com/iliyamo/slot-reservation/internal/payment"
	"github.com/iliyamo/slot-reservation/internal/queue"
	"github.com/iliyamo/slot-reservation/internal/receipt"
	"github.com/iliyamo/slot-reservation/internal/repository"
	"github.com/iliyamo/slot-reservation/internal/router"
	"github.com/iliyamo/slot-reservation/internal/service"
	"github.com/iliyamo/slot-reservation/internal/validator"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "slot-reservation",
	})

	db, err := database.Open(database.Options{
		User:            cfg.DBUser,
		Pass:            cfg.DBPass,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		LockWaitTimeout: cfg.DBLockWait,
	})
	if err != nil {
		log.Fatal("database connection failed", "error", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable, rate limits are per instance and caching is off")
	} else {
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bookings service.BookingPublisher
	if cfg.PublishBookingEvents {
		bookings = queue.NewPublisher(cfg.RabbitURL, log)
	}
	if cfg.BookingConsumerEnabled {
		consumer := queue.NewConsumer(cfg.RabbitURL, os.Getenv("BOOKING_LOG_PATH"), log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("booking consumer stopped", "error", err)
			}
		}()
	}

	var availability service.AvailabilityPublisher
	producer, err := events.NewProducer(config.LoadKafkaConfig(), log)
	if err != nil {
		log.Fatal("kafka producer configuration invalid", "error", err)
	}
	if producer != nil {
		availability = producer
		defer producer.Close()
	}

	slots := repository.NewSlotRepo(db)
	schedules := repository.NewScheduleRepo(db)
	carts := repository.NewCartRepo(db)
	reservations := repository.NewReservationRepo(db)
	plans := repository.NewPlanRepo(db)
	users := repository.NewUserRepo(db)
	transactions := repository.NewTransactionRepo(db)

	cal := service.NewCalendar(nil, cfg.Location)
	v := validator.New()
	locker := service.NewRedisLocker(rdb)

	cartSvc := service.NewCartService(service.CartDeps{
		DB: db, Slots: slots, Days: schedules, Carts: carts, Reservations: reservations, Plans: plans,
		Calendar: cal, Validator: v, Availability: availability, Log: log,
	})
	checkoutSvc := service.NewCheckoutService(service.CheckoutDeps{
		DB: db, Slots: slots, Days: schedules, Carts: carts, Reservations: reservations, Plans: plans,
		Users: users, Transactions: transactions, Calendar: cal, Validator: v,
		Locker: locker, LockTTL: cfg.CheckoutLockTTL, Bookings: bookings, Availability: availability, Log: log,
	})
	topupSvc := service.NewTopupService(service.TopupDeps{
		DB: db, Users: users, Transactions: transactions, Gateway: payment.NewLocalGateway(),
		Currency: cfg.PaymentCurrency, Calendar: cal, Validator: v,
		Locker: locker, LockTTL: cfg.CheckoutLockTTL, Log: log,
	})
	inventorySvc := service.NewInventoryService(slots, cal, v, log)
	receiptSvc := service.NewReceiptService(transactions, users, receipt.NewSigner(cfg.ReceiptSigningSecret), cal, log)
	scheduleSvc := service.NewScheduleService(db, schedules, cal, v, log)

	if cfg.PaymentWebhookSecret == "" {
		log.Warn("PAYMENT_WEBHOOK_SECRET is empty, every webhook will be rejected")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recovery(log))
	e.Use(middleware.RequestLogging(log))
	e.Use(echomw.CORS())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(handler.AuthConfig{
		JWTSecret:    cfg.JWTSecret,
		AccessTTLMin: cfg.AccessTTLMin,
		BcryptCost:   cfg.BcryptCost,
	}, users, v, log), cfg.JWTSecret)
	router.RegisterPublic(e, handler.NewPublicHandler(inventorySvc, log),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log))
	router.RegisterWebhooks(e, handler.NewWebhookHandler(topupSvc, cfg.PaymentWebhookSecret, log))
	router.RegisterCustomer(e, handler.NewCustomerHandler(cartSvc, checkoutSvc, topupSvc, receiptSvc, log), cfg.JWTSecret)
	router.RegisterOwner(e, handler.NewOwnerHandler(scheduleSvc, log), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env, "timezone", cfg.Location.String())
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
