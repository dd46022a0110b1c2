package automaton

import (
	"context"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/dispatcher"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/statemachine"
)

type pluginOutcome struct {
	info *domain.PluginTransactionInfo
	err  error
}

func (r *Runner) operation(sc *StateContext, call pluginCall) statemachine.OperationFunc {
	return func(ctx context.Context) (statemachine.OperationResult, error) {
		req := sc.pluginRequest()
		task := func(ctx context.Context) (pluginOutcome, error) {
			info, err := call(sc.plugin, ctx, req)
			return pluginOutcome{info: info, err: err}, nil
		}

		var (
			out pluginOutcome
			err error
		)
		switch {
		case sc.lockErr != nil:
			err = sc.lockErr
		case sc.req.ShouldLockAccount:
			// Run already holds the account lock.
			out, err = dispatcher.Dispatch(r.dispatcher, ctx, sc.req.Account.ExternalKey, task)
		default:
			out, err = task(ctx)
		}
		if err != nil {
			sc.recordDispatchError(err)
			return statemachine.ResultException, err
		}

		sc.recordPluginOutcome(out)
		if out.err != nil {
			r.logger.Warn("plugin call failed",
				"plugin", sc.pluginName,
				"transaction_type", sc.req.TransactionType,
				"transaction_id", req.TransactionID,
				"error", out.err)
			if domain.IsBusinessError(out.err) {
				return statemachine.ResultException, out.err
			}
			return statemachine.ResultException, domain.NewPluginExceptionError(sc.pluginName, sc.req.TransactionType, out.err)
		}
		return resultFromPlugin(out.info), nil
	}
}

// resultFromPlugin drives the state machine from the plugin's reported status.
func resultFromPlugin(info *domain.PluginTransactionInfo) statemachine.OperationResult {
	if info == nil {
		return statemachine.ResultFailure
	}
	switch info.Status {
	case domain.PluginStatusProcessed:
		return statemachine.ResultSuccess
	case domain.PluginStatusPending:
		return statemachine.ResultPending
	default:
		return statemachine.ResultFailure
	}
}
