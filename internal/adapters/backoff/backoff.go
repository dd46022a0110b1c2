// Package backoff is a control plugin that retries failed payments on an
// exponential schedule.
package backoff

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/config"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
)

const PluginName = "exponential-backoff"

type Plugin struct {
	baseDelay  time.Duration
	maxDelay   time.Duration
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
	jitter     func() time.Duration
}

var _ ports.ControlPlugin = (*Plugin)(nil)

func New(cfg config.RetryConfig, logger *slog.Logger) *Plugin {
	return &Plugin{
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		jitter: func() time.Duration {
			return time.Duration(rand.Intn(1000)) * time.Millisecond
		},
	}
}

// PriorCall aborts calls that already used up their retries.
func (p *Plugin) PriorCall(ctx context.Context, cc domain.ControlContext) (*domain.PriorCallResult, error) {
	if cc.RetryCount > p.maxRetries {
		p.logger.Info("retry budget exhausted, aborting",
			"transaction_external_key", cc.TransactionExternalKey,
			"retry_count", cc.RetryCount)
		return &domain.PriorCallResult{Aborted: true}, nil
	}
	return &domain.PriorCallResult{}, nil
}

func (p *Plugin) OnSuccessCall(ctx context.Context, cc domain.ControlContext) error {
	if cc.RetryCount > 0 {
		p.logger.Info("payment succeeded after retries",
			"transaction_external_key", cc.TransactionExternalKey,
			"retry_count", cc.RetryCount)
	}
	return nil
}

// OnFailureCall schedules the next try unless the failure cannot be fixed by
// trying again or the retry budget is spent.
func (p *Plugin) OnFailureCall(ctx context.Context, cc domain.ControlContext) (*domain.OnFailureResult, error) {
	if cc.Err != nil && domain.Categorize(cc.Err) == domain.CategoryValidation {
		return &domain.OnFailureResult{}, nil
	}
	if cc.RetryCount >= p.maxRetries {
		p.logger.Warn("maximum retries reached",
			"transaction_external_key", cc.TransactionExternalKey,
			"retry_count", cc.RetryCount)
		return &domain.OnFailureResult{}, nil
	}

	next := p.now().Add(p.backoff(cc.RetryCount))
	return &domain.OnFailureResult{NextRetryDate: &next}, nil
}

// backoff calculation with exponential delay and jitter
func (p *Plugin) backoff(attempt int) time.Duration {
	base := p.baseDelay * time.Duration(1<<attempt)
	if base <= 0 || base > p.maxDelay {
		return p.maxDelay
	}
	delay := base + p.jitter()
	if delay > p.maxDelay {
		return p.maxDelay
	}
	return delay
}
