// Package mocks holds testify doubles for the plugin ports.
package mocks

import (
	"context"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// PaymentPlugin is a mock.Mock backed ports.PaymentPlugin.
type PaymentPlugin struct {
	mock.Mock
}

var _ ports.PaymentPlugin = (*PaymentPlugin)(nil)

func (m *PaymentPlugin) AuthorizePayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error) {
	args := m.Called(ctx, req)
	return infoArg(args), args.Error(1)
}

func (m *PaymentPlugin) CapturePayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error) {
	args := m.Called(ctx, req)
	return infoArg(args), args.Error(1)
}

func (m *PaymentPlugin) PurchasePayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error) {
	args := m.Called(ctx, req)
	return infoArg(args), args.Error(1)
}

func (m *PaymentPlugin) VoidPayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error) {
	args := m.Called(ctx, req)
	return infoArg(args), args.Error(1)
}

func (m *PaymentPlugin) RefundPayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error) {
	args := m.Called(ctx, req)
	return infoArg(args), args.Error(1)
}

func (m *PaymentPlugin) CreditPayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error) {
	args := m.Called(ctx, req)
	return infoArg(args), args.Error(1)
}

func (m *PaymentPlugin) ChargebackPayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error) {
	args := m.Called(ctx, req)
	return infoArg(args), args.Error(1)
}

func (m *PaymentPlugin) GetPaymentInfo(ctx context.Context, req domain.PluginRequest) ([]*domain.PluginTransactionInfo, error) {
	args := m.Called(ctx, req)
	var infos []*domain.PluginTransactionInfo
	if v := args.Get(0); v != nil {
		infos = v.([]*domain.PluginTransactionInfo)
	}
	return infos, args.Error(1)
}

func infoArg(args mock.Arguments) *domain.PluginTransactionInfo {
	if v := args.Get(0); v != nil {
		return v.(*domain.PluginTransactionInfo)
	}
	return nil
}

// ControlPlugin is a mock.Mock backed ports.ControlPlugin.
type ControlPlugin struct {
	mock.Mock
}

var _ ports.ControlPlugin = (*ControlPlugin)(nil)

func (m *ControlPlugin) PriorCall(ctx context.Context, cc domain.ControlContext) (*domain.PriorCallResult, error) {
	args := m.Called(ctx, cc)
	var res *domain.PriorCallResult
	if v := args.Get(0); v != nil {
		res = v.(*domain.PriorCallResult)
	}
	return res, args.Error(1)
}

func (m *ControlPlugin) OnSuccessCall(ctx context.Context, cc domain.ControlContext) error {
	return m.Called(ctx, cc).Error(0)
}

func (m *ControlPlugin) OnFailureCall(ctx context.Context, cc domain.ControlContext) (*domain.OnFailureResult, error) {
	args := m.Called(ctx, cc)
	var res *domain.OnFailureResult
	if v := args.Get(0); v != nil {
		res = v.(*domain.OnFailureResult)
	}
	return res, args.Error(1)
}

// Registry maps names to plugins for tests.
type Registry struct {
	Plugins        map[string]ports.PaymentPlugin
	ControlPlugins map[string]ports.ControlPlugin
}

func (r *Registry) GetPlugin(name string) (ports.PaymentPlugin, bool) {
	p, ok := r.Plugins[name]
	return p, ok
}

func (r *Registry) GetControlPlugin(name string) (ports.ControlPlugin, bool) {
	p, ok := r.ControlPlugins[name]
	return p, ok
}
