package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/openshelf/circulation-backend/internal/catalog"
	"github.com/openshelf/circulation-backend/internal/cron"
	"github.com/openshelf/circulation-backend/internal/inventory"
	"github.com/openshelf/circulation-backend/internal/lending"
	"github.com/openshelf/circulation-backend/internal/patrons"
	"github.com/openshelf/circulation-backend/internal/reservations"
	"github.com/openshelf/circulation-backend/pkg/config"
	"github.com/openshelf/circulation-backend/pkg/db"
	"github.com/openshelf/circulation-backend/pkg/logger"
	"github.com/openshelf/circulation-backend/pkg/mailer"
	"github.com/openshelf/circulation-backend/pkg/metrics"
	"github.com/openshelf/circulation-backend/pkg/migrate"
	"github.com/openshelf/circulation-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	ledger, err := buildCirculation(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build circulation services", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger: logg,
		Ledger: ledger,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation expiry job", err)
		os.Exit(1)
	}
	overdueJob, err := cron.NewOverdueFeesJob(cron.OverdueFeesJobParams{
		Logger: logg,
		Ledger: ledger,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create overdue fees job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expiryJob, overdueJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Circulation.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildCirculation(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (lending.Service, error) {
	conn := dbClient.DB()

	patronRepo := patrons.NewRepository(conn)
	catalogRepo := catalog.NewRepository(conn)
	reservationRepo := reservations.NewRepository(conn)
	loanRepo := lending.NewRepository(conn)

	patronSvc, err := patrons.NewService(patrons.ServiceParams{PatronRepo: patronRepo})
	if err != nil {
		return nil, err
	}
	queue, err := reservations.NewQueueManager(reservationRepo)
	if err != nil {
		return nil, err
	}

	mail, err := mailer.New(cfg.Mailer, logg)
	if err != nil {
		return nil, err
	}

	bus, err := inventory.NewBus(logg)
	if err != nil {
		return nil, err
	}
	availability, err := inventory.NewAvailabilityWatcher(catalogRepo, redisClient)
	if err != nil {
		return nil, err
	}
	audit, err := inventory.NewAuditWatcher(conn)
	if err != nil {
		return nil, err
	}
	notifier, err := inventory.NewNotifierWatcher(reservationRepo, patronRepo, mail, availability)
	if err != nil {
		return nil, err
	}
	bus.Subscribe(availability)
	bus.Subscribe(audit)
	bus.Subscribe(notifier)

	ledger, err := lending.NewService(lending.ServiceParams{
		DB:              dbClient,
		LoanRepo:        loanRepo,
		CatalogRepo:     catalogRepo,
		ReservationRepo: reservationRepo,
		Queue:           queue,
		Patrons:         patronSvc,
		Notifier:        bus,
		Metrics:         metrics.NewCirculationMetrics(prometheus.DefaultRegisterer),
		Logger:          logg,
		ReservationTTL:  cfg.Circulation.ReservationExpiry(),
	})
	if err != nil {
		return nil, err
	}
	return ledger, nil
}
