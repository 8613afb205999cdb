package resilience

import (
	"context"

	"github.com/MrWong99/tabrec/pkg/statestore"
)

type guardedStore struct {
	inner   statestore.Store
	breaker *CircuitBreaker
}

// GuardStore wraps store so that Load and Save fail fast with
// [ErrCircuitOpen] after repeated backend errors. Ping bypasses the breaker
// so health probes keep reporting the real backend status.
func GuardStore(store statestore.Store, cfg CircuitBreakerConfig) statestore.Store {
	if cfg.Name == "" {
		cfg.Name = "state"
	}
	return &guardedStore{inner: store, breaker: NewCircuitBreaker(cfg)}
}

func (g *guardedStore) Load(ctx context.Context) (statestore.State, error) {
	var st statestore.State
	err := g.breaker.Execute(func() error {
		var err error
		st, err = g.inner.Load(ctx)
		return err
	})
	return st, err
}

func (g *guardedStore) Save(ctx context.Context, s statestore.State) error {
	return g.breaker.Execute(func() error { return g.inner.Save(ctx, s) })
}

func (g *guardedStore) Ping(ctx context.Context) error {
	if p, ok := g.inner.(statestore.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (g *guardedStore) Close() error { return g.inner.Close() }
