package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/config"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/dispatcher"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
	"github.com/google/uuid"
)

const maxJanitorBatch = 100

// TransactionCompleter settles incomplete transactions from plugin data.
type TransactionCompleter interface {
	PaymentPlugin(ctx context.Context, paymentMethodID uuid.UUID, includeDeleted bool) (string, ports.PaymentPlugin, error)
	CompleteFromPlugin(ctx context.Context, txn *domain.PaymentTransaction, info *domain.PluginTransactionInfo) (*domain.Payment, error)
}

// AttemptCompleter finishes control attempts abandoned in INIT.
type AttemptCompleter interface {
	CompleteRun(ctx context.Context, attempt *domain.PaymentAttempt) (bool, error)
}

// Janitor resolves work the runners left behind: transactions whose outcome
// was never learned and attempts that never left INIT.
type Janitor struct {
	dao          ports.PaymentDao
	accounts     ports.AccountAPI
	transactions TransactionCompleter
	attempts     AttemptCompleter
	dispatcher   *dispatcher.PluginDispatcher
	cfg          config.JanitorConfig
	logger       *slog.Logger
	now          func() time.Time
}

func NewJanitor(
	dao ports.PaymentDao,
	accounts ports.AccountAPI,
	transactions TransactionCompleter,
	attempts AttemptCompleter,
	d *dispatcher.PluginDispatcher,
	cfg config.JanitorConfig,
	logger *slog.Logger,
) *Janitor {
	if cfg.BatchSize <= 0 || cfg.BatchSize > maxJanitorBatch {
		cfg.BatchSize = maxJanitorBatch
	}
	return &Janitor{
		dao:          dao,
		accounts:     accounts,
		transactions: transactions,
		attempts:     attempts,
		dispatcher:   d,
		cfg:          cfg,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	j.logger.Info("starting janitor",
		"interval", j.cfg.Interval,
		"pending_timeout", j.cfg.PendingTimeout,
		"batch_size", j.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("stopping janitor")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single janitor cycle.
func (j *Janitor) RunOnce(ctx context.Context) {
	j.reconcileIncompleteTransactions(ctx)
	j.completeStaleAttempts(ctx)
}
