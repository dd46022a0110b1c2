package control

import (
	"context"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
)

// priorCalls runs every control plugin in order, feeding each the inputs
// adjusted by the ones before it. The first abort stops the chain.
func (r *Runner) priorCalls(ctx context.Context, names []string, cc domain.ControlContext) (*domain.PriorCallResult, error) {
	merged := &domain.PriorCallResult{}
	for _, name := range names {
		plugin, ok := r.controls.GetControlPlugin(name)
		if !ok {
			r.logger.Warn("skipping unknown control plugin", "plugin", name)
			continue
		}

		res, err := plugin.PriorCall(ctx, cc)
		if err != nil {
			r.logger.Error("control plugin prior call failed", "plugin", name, "error", err)
			return nil, domain.NewControlPluginExceptionError(name, err)
		}
		if res == nil {
			continue
		}
		if res.AdjustedProperties != nil {
			merged.AdjustedProperties = res.AdjustedProperties
			cc.Properties = res.AdjustedProperties
		}
		if res.Aborted {
			merged.Aborted = true
			return merged, nil
		}
		if res.AdjustedAmount != nil {
			amount := *res.AdjustedAmount
			merged.AdjustedAmount = &amount
			cc.Amount = amount
		}
		if res.AdjustedCurrency != "" {
			merged.AdjustedCurrency = res.AdjustedCurrency
			cc.Currency = res.AdjustedCurrency
		}
		if res.AdjustedPaymentMethodID != nil {
			id := *res.AdjustedPaymentMethodID
			merged.AdjustedPaymentMethodID = &id
			cc.PaymentMethodID = &id
		}
	}
	return merged, nil
}

// onSuccessCalls only logs plugin errors; what to do about them is undefined.
func (r *Runner) onSuccessCalls(ctx context.Context, names []string, cc domain.ControlContext) {
	for _, name := range names {
		plugin, ok := r.controls.GetControlPlugin(name)
		if !ok {
			continue
		}
		if err := plugin.OnSuccessCall(ctx, cc); err != nil {
			r.logger.Warn("control plugin success call failed",
				"plugin", name,
				"transaction_external_key", cc.TransactionExternalKey,
				"error", err)
		}
	}
}

// onFailureCalls returns the earliest retry date any plugin asked for.
func (r *Runner) onFailureCalls(ctx context.Context, names []string, cc domain.ControlContext) *time.Time {
	var earliest *time.Time
	for _, name := range names {
		plugin, ok := r.controls.GetControlPlugin(name)
		if !ok {
			continue
		}
		res, err := plugin.OnFailureCall(ctx, cc)
		if err != nil {
			r.logger.Warn("control plugin failure call failed",
				"plugin", name,
				"transaction_external_key", cc.TransactionExternalKey,
				"error", err)
			continue
		}
		if res == nil || res.NextRetryDate == nil {
			continue
		}
		if earliest == nil || res.NextRetryDate.Before(*earliest) {
			d := *res.NextRetryDate
			earliest = &d
		}
	}
	return earliest
}
