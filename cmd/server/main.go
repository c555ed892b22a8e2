package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hotel-reservation/internal/config"
	"github.com/iliyamo/hotel-reservation/internal/database"
	"github.com/iliyamo/hotel-reservation/internal/handler"
	"github.com/iliyamo/hotel-reservation/internal/logger"
	"github.com/iliyamo/hotel-reservation/internal/middleware"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/queue"
	"github.com/iliyamo/hotel-reservation/internal/repository"
	"github.com/iliyamo/hotel-reservation/internal/router"
	"github.com/iliyamo/hotel-reservation/internal/scheduler"
	"github.com/iliyamo/hotel-reservation/internal/service"
)

func main() {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load()
	logger.Initialize(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb != nil {
		defer rdb.Close()
	}

	store := repository.NewStore(db)
	gateway := payment.NewSimulatedGateway(cfg.GatewayDeclineAbove, 0)
	pay := payment.NewAdapter(gateway, cfg.GatewayTimeout)
	locks := payment.NewKeyLocker(rdb, cfg.IdempotencyLockTTL)
	events := queue.NewPublisher(cfg.RabbitURL)

	bookings := service.NewBookingService(store, pay, locks, events)
	ledgerSvc := service.NewLedgerService(store, pay, locks, events)

	go queue.NewConsumer(cfg.RabbitURL, cfg.LogDir).Run(ctx)

	if cfg.AuditSchedule != "" {
		c, err := scheduler.Start(cfg.AuditSchedule, scheduler.NewLedgerAudit(store.Reservations))
		if err != nil {
			log.Fatalf("schedule ledger audit: %v", err)
		}
		defer c.Stop()
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()

	mw := router.Middleware{
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	}
	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db)), cfg.JWTSecret)
	router.RegisterPublic(e, handler.NewAvailabilityHandler(bookings.Availability(), store.Units), mw)
	router.RegisterReservations(e, handler.NewReservationHandler(bookings, ledgerSvc, store.Reservations), cfg.JWTSecret, mw)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
