package plugin

import (
	"sync"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
)

// Registry holds the payment and control plugins installed at startup.
type Registry struct {
	mu       sync.RWMutex
	plugins  map[string]ports.PaymentPlugin
	controls map[string]ports.ControlPlugin
}

var (
	_ ports.PluginRegistry        = (*Registry)(nil)
	_ ports.ControlPluginRegistry = (*Registry)(nil)
)

func NewRegistry() *Registry {
	return &Registry{
		plugins:  make(map[string]ports.PaymentPlugin),
		controls: make(map[string]ports.ControlPlugin),
	}
}

func (r *Registry) RegisterPlugin(name string, p ports.PaymentPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[name] = p
}

func (r *Registry) RegisterControlPlugin(name string, p ports.ControlPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controls[name] = p
}

func (r *Registry) GetPlugin(name string) (ports.PaymentPlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

func (r *Registry) GetControlPlugin(name string) (ports.ControlPlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.controls[name]
	return p, ok
}
