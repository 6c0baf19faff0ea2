package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ProviderHealth is a point-in-time view of one upstream map provider.
type ProviderHealth struct {
	Name          string
	CircuitState  gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt *time.Time
	LastFailureAt *time.Time

	// LastError is the most recent failure message, kept after later successes.
	LastError string
}

// IsHealthy reports whether the circuit is closed.
func (h *ProviderHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded reports whether the circuit is half-open and probing.
func (h *ProviderHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// IsUnhealthy reports whether the circuit is open and calls are being refused.
func (h *ProviderHealth) IsUnhealthy() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// Registry tracks the resilient clients of every configured provider so the ops
// endpoints can report them.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*registeredProvider
	now       func() time.Time
}

type registeredProvider struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*registeredProvider),
		now:       time.Now,
	}
}

// Register adds a client. Registering a name twice replaces the earlier client,
// which happens when directions and places share one Maps client.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = &registeredProvider{client: client}
}

// RecordSuccess stamps the provider's last success. Unknown names are ignored.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[name]; ok {
		now := r.now()
		p.lastSuccessAt = &now
	}
}

// RecordFailure stamps the provider's last failure and keeps its message.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[name]; ok {
		now := r.now()
		p.lastFailureAt = &now
		if err != nil {
			p.lastError = err.Error()
		}
	}
}

// GetHealth returns one provider's health, or nil if it is not registered.
func (r *Registry) GetHealth(name string) *ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil
	}
	return p.health(name)
}

// GetAllHealth returns every provider's health ordered by name.
func (r *Registry) GetAllHealth() []*ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ProviderHealth, 0, len(r.providers))
	for name, p := range r.providers {
		out = append(out, p.health(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ProviderCount returns the number of registered providers.
func (r *Registry) ProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

func (p *registeredProvider) health(name string) *ProviderHealth {
	return &ProviderHealth{
		Name:          name,
		CircuitState:  p.client.CircuitBreakerState(),
		Counts:        p.client.CircuitBreakerCounts(),
		LastSuccessAt: p.lastSuccessAt,
		LastFailureAt: p.lastFailureAt,
		LastError:     p.lastError,
	}
}
