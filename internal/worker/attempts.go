package worker

import (
	"context"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/statemachine"
)

func (j *Janitor) completeStaleAttempts(ctx context.Context) {
	cutoff := j.now().Add(-j.cfg.AttemptCutoff)
	attempts, err := j.dao.GetAttemptsByState(ctx, statemachine.ControlStateInit, cutoff, j.cfg.BatchSize)
	if err != nil {
		j.logger.Error("failed to fetch stale attempts", "error", err)
		return
	}

	var completed int
	for _, a := range attempts {
		if ctx.Err() != nil {
			break
		}
		done, err := j.attempts.CompleteRun(ctx, a)
		if err != nil {
			j.logger.Error("failed to complete attempt",
				"attempt_id", a.ID,
				"transaction_external_key", a.TransactionExternalKey,
				"category", domain.Categorize(err),
				"error", err)
			continue
		}
		if done {
			completed++
		}
	}

	if completed > 0 {
		j.logger.Info("completed stale attempts", "count", completed)
	}
}
