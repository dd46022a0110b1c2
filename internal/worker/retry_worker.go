package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
)

// AttemptRetrier re-enters the control machine for a scheduled retry.
type AttemptRetrier interface {
	RetryAttempt(ctx context.Context, n domain.RetryNotification) (*domain.Payment, error)
}

// RetryWorker drains the durable retry queue.
type RetryWorker struct {
	queue     ports.RetryQueue
	retrier   AttemptRetrier
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

func NewRetryWorker(
	queue ports.RetryQueue,
	retrier AttemptRetrier,
	interval time.Duration,
	batchSize int,
	logger *slog.Logger,
) *RetryWorker {
	return &RetryWorker{
		queue:     queue,
		retrier:   retrier,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (w *RetryWorker) Start(ctx context.Context) {
	w.logger.Info("retry worker started", "interval", w.interval, "batch_size", w.batchSize)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("retry worker stopping")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce claims the due notifications and replays them. A notification is
// completed once the control runner accepted it; on error it is left claimed
// and comes back after the queue's visibility window.
func (w *RetryWorker) RunOnce(ctx context.Context) int {
	due, err := w.queue.ClaimDue(ctx, w.now(), w.batchSize)
	if err != nil {
		w.logger.Error("failed to claim due retries", "error", err)
		return 0
	}

	var processed int
	for _, n := range due {
		if ctx.Err() != nil {
			return processed
		}

		payment, err := w.retrier.RetryAttempt(ctx, n)
		if err != nil && !domain.IsBusinessError(err) {
			w.logger.Error("retry failed",
				"attempt_id", n.AttemptID,
				"transaction_external_key", n.TransactionExternalKey,
				"category", domain.Categorize(err),
				"error", err)
			continue
		}
		if err != nil {
			w.logger.Warn("retry completed with error",
				"attempt_id", n.AttemptID,
				"transaction_external_key", n.TransactionExternalKey,
				"category", domain.Categorize(err),
				"error", err)
		} else if payment != nil {
			w.logger.Info("retry completed",
				"attempt_id", n.AttemptID,
				"payment_id", payment.ID,
				"state", payment.StateName)
		}

		if err := w.queue.Complete(ctx, n.ID); err != nil {
			w.logger.Error("failed to complete retry notification", "id", n.ID, "error", err)
			continue
		}
		processed++
	}

	if processed > 0 {
		w.logger.Info("processed scheduled retries", "count", processed)
	}
	return processed
}
