package adapter

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry hands out one adapter per integration so retry and outcome state
// stays scoped per tenant.
type Registry struct {
	policy   RetryPolicy
	creds    CredentialSource
	reporter StatusReporter
	logger   *zap.Logger

	// baseURLs defaults to BaseURLs; tests point it at local servers.
	baseURLs map[string]string

	mu       sync.Mutex
	adapters map[uuid.UUID]*Adapter
}

func NewRegistry(policy RetryPolicy, creds CredentialSource, reporter StatusReporter, logger *zap.Logger) *Registry {
	return &Registry{
		policy:   policy,
		creds:    creds,
		reporter: reporter,
		logger:   logger,
		baseURLs: BaseURLs,
		adapters: make(map[uuid.UUID]*Adapter),
	}
}

func (r *Registry) WithBaseURLs(urls map[string]string) *Registry {
	r.baseURLs = urls
	return r
}

func (r *Registry) AdapterFor(service string, integrationID uuid.UUID) (*Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.adapters[integrationID]; ok {
		return a, nil
	}

	baseURL, ok := r.baseURLs[service]
	if !ok {
		return nil, fmt.Errorf("no base URL for service %q", service)
	}

	a := New(service, integrationID, baseURL, r.policy, r.creds, r.reporter, r.logger)
	r.adapters[integrationID] = a
	return a, nil
}

func (r *Registry) SourceFor(service string, integrationID uuid.UUID) (Source, error) {
	a, err := r.AdapterFor(service, integrationID)
	if err != nil {
		return nil, err
	}
	return NewSource(a)
}

// OutcomesFor returns the recent call outcomes of an integration's adapter,
// empty when no call went through it yet.
func (r *Registry) OutcomesFor(integrationID uuid.UUID, window time.Duration) []Outcome {
	r.mu.Lock()
	a, ok := r.adapters[integrationID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return a.RecentOutcomes(window)
}

// Forget drops the adapter of a disconnected integration.
func (r *Registry) Forget(integrationID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, integrationID)
}
