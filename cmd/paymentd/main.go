package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/adapters/backoff"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/adapters/eventbus"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/adapters/memory"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/adapters/plugin"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/adapters/postgres"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/adapters/sqlite"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/config"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/automaton"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/control"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/dispatcher"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/statemachine"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/worker"
)

const defaultClaimVisibility = 5 * time.Minute

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting payment automaton",
		"env", cfg.Primary.Env,
		"plugin", cfg.Plugin.Name,
		"queue_backend", cfg.Queue.Backend,
		"locker_backend", cfg.Locker.Backend,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()
	db, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var locker ports.Locker
	switch cfg.Locker.Backend {
	case "postgres":
		locker = postgres.NewLocker(db, cfg.Payment.LockMaxTries, cfg.Payment.LockWaitInterval)
	default:
		locker = memory.NewLocker(cfg.Payment.LockMaxTries, cfg.Payment.LockWaitInterval)
	}

	visibility := cfg.Queue.ClaimVisibility
	if visibility <= 0 {
		visibility = defaultClaimVisibility
	}

	var queue ports.RetryQueue
	switch cfg.Queue.Backend {
	case "sqlite":
		var sqliteDB *sql.DB
		sqliteDB, err = sqlite.InitDB(cfg.Queue.SQLitePath)
		if err != nil {
			logger.Error("failed to open retry queue", "path", cfg.Queue.SQLitePath, "error", err)
			os.Exit(1)
		}
		defer sqliteDB.Close()
		queue = sqlite.NewRetryQueue(sqliteDB, visibility)
	default:
		queue = postgres.NewRetryQueue(db, visibility)
	}

	dao := postgres.NewPaymentDao(db)
	accounts := postgres.NewAccountAPI(db)

	registry := plugin.NewRegistry()
	registry.RegisterPlugin(cfg.Plugin.Name, plugin.NewHTTPPlugin(cfg.Plugin))
	registry.RegisterControlPlugin(backoff.PluginName, backoff.New(cfg.Retry, logger))

	bus := eventbus.NewInMemoryBus()
	bus.SubscribeAll(func(ctx context.Context, evt domain.Event) error {
		logger.Info("payment event",
			"type", evt.Type,
			"account_id", evt.AccountID,
			"payment_id", evt.PaymentID,
			"transaction_id", evt.TransactionID,
			"transaction_type", evt.TransactionType,
			"status", evt.Status,
			"message", evt.Message)
		return nil
	})

	paymentMachine, err := statemachine.NewPaymentStateMachine()
	if err != nil {
		logger.Error("invalid payment state machine", "error", err)
		os.Exit(1)
	}
	controlMachine, err := statemachine.NewControlStateMachine()
	if err != nil {
		logger.Error("invalid control state machine", "error", err)
		os.Exit(1)
	}

	d := dispatcher.NewPluginDispatcher(locker, cfg.Payment, logger)
	payments := automaton.NewRunner(paymentMachine, dao, registry, d, bus, logger)
	controls := control.NewRunner(controlMachine, payments, dao, accounts, registry, d, queue, logger)

	retryWorker := worker.NewRetryWorker(
		queue,
		controls,
		cfg.Worker.Interval,
		cfg.Worker.BatchSize,
		logger,
	)
	janitor := worker.NewJanitor(dao, accounts, payments, controls, d, cfg.Janitor, logger)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		retryWorker.Start(workerCtx)
	}()
	go func() {
		defer wg.Done()
		janitor.Start(workerCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down workers...")

	cancelWorkers()
	wg.Wait()

	logger.Info("payment automaton exited")
}
