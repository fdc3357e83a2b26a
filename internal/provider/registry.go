package provider

import (
	"fmt"
	"sync"

	"github.com/moat-io/moat/pkg/provider"
	"github.com/moat-io/moat/providers/aws"
	"github.com/moat-io/moat/providers/local"
	"github.com/moat-io/moat/providers/sim"
)

// Registry manages the lifecycle of providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]provider.Interface
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]provider.Interface),
	}
}

// LoadProvider initializes and registers a built-in provider.
func (r *Registry) LoadProvider(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return nil
	}

	var p provider.Interface
	switch name {
	case "sim":
		p = sim.New()
	case "local":
		p = local.New()
	case "aws":
		p = aws.New()
	default:
		return fmt.Errorf("unknown provider: %s", name)
	}

	r.providers[name] = p
	return nil
}

// Get returns a registered provider.
func (r *Registry) Get(name string) (provider.Interface, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return p, nil
}
