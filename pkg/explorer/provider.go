package explorer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// ResultProvider exposes the memoized result of a named computation.
type ResultProvider[T any] interface {
	Name() string
	Result(ctx context.Context) (T, error)
}

// ComponentError is the failure of a named component. A dependent that fails
// because of a dependency wraps the dependency's ComponentError in its own.
type ComponentError struct {
	Component string
	Optional  bool
	Err       error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("component %s: %v", e.Component, e.Err)
}

func (e *ComponentError) Unwrap() error { return e.Err }

// ErrProviderType is returned by a provider whose name is already registered
// in the scope with a different result type.
var ErrProviderType = errors.New("provider registered with another result type")

type outcome struct {
	value any
	err   error
}

// Scope holds the providers of one exploration. Every provider runs at most
// once per scope, under the scope's context, however many dependents ask for
// it.
type Scope struct {
	ctx    context.Context
	ectx   *ExplorerContext
	logger *slog.Logger
	seed   uint64

	group singleflight.Group

	mu        sync.Mutex
	providers map[string]any
	results   map[string]outcome
}

func newScope(ctx context.Context, ectx *ExplorerContext, logger *slog.Logger, seed uint64) *Scope {
	return &Scope{
		ctx:       ctx,
		ectx:      ectx,
		logger:    logger,
		seed:      seed,
		providers: make(map[string]any),
		results:   make(map[string]outcome),
	}
}

// NewScope creates a standalone scope, mainly for running providers outside
// an exploration.
func NewScope(ctx context.Context, ectx *ExplorerContext, logger *slog.Logger) *Scope {
	if logger == nil {
		logger = slog.Default()
	}
	return newScope(ctx, ectx, logger, rand.Uint64())
}

func (s *Scope) Context() *ExplorerContext { return s.ectx }

func (s *Scope) Logger() *slog.Logger { return s.logger }

// Rand returns a generator seeded from the scope seed and name, so runs with
// a fixed seed draw the same samples.
func (s *Scope) Rand(name string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return rand.New(rand.NewPCG(s.seed, h.Sum64()))
}

func (s *Scope) cached(name string) (outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.results[name]
	return o, ok
}

// Provider is a memoized computation registered in a Scope.
type Provider[T any] struct {
	scope   *Scope
	name    string
	compute func(ctx context.Context, ec *ExplorerContext) (T, error)
	err     error
}

// Provide registers compute under name. Registering a name again returns the
// provider registered first, so components can share dependencies by name.
// If the existing provider has a different result type, the returned provider
// fails with ErrProviderType and the first registration is left intact.
func Provide[T any](s *Scope, name string, compute func(ctx context.Context, ec *ExplorerContext) (T, error)) *Provider[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.providers[name]; ok {
		if p, ok := existing.(*Provider[T]); ok {
			return p
		}
		var zero T
		return &Provider[T]{scope: s, name: name, err: &ComponentError{
			Component: name,
			Err:       fmt.Errorf("%w: have %T, want result %T", ErrProviderType, existing, zero),
		}}
	}
	p := &Provider[T]{scope: s, name: name, compute: compute}
	s.providers[name] = p
	return p
}

func (p *Provider[T]) Name() string { return p.name }

// Result returns the provider's result, computing it on first use. ctx only
// bounds the wait: the computation itself runs under the scope's context, so
// a caller giving up does not fail the result for other dependents.
func (p *Provider[T]) Result(ctx context.Context) (T, error) {
	if p.err != nil {
		var zero T
		return zero, p.err
	}
	if o, ok := p.scope.cached(p.name); ok {
		return unpack[T](o)
	}
	ch := p.scope.group.DoChan(p.name, func() (any, error) {
		if o, ok := p.scope.cached(p.name); ok {
			return o.value, o.err
		}
		v, err := p.run()
		p.scope.mu.Lock()
		p.scope.results[p.name] = outcome{value: v, err: err}
		p.scope.mu.Unlock()
		return v, err
	})
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return unpack[T](outcome{value: r.Val, err: r.Err})
	}
}

func unpack[T any](o outcome) (T, error) {
	var zero T
	if o.err != nil {
		return zero, o.err
	}
	v, _ := o.value.(T)
	return v, nil
}

func (p *Provider[T]) run() (T, error) {
	s := p.scope
	var zero T
	if err := s.ctx.Err(); err != nil {
		return zero, &ComponentError{Component: p.name, Err: err}
	}
	ctx, span := tracer.Start(s.ctx, "explorer.Provider",
		trace.WithAttributes(attribute.String("explorer.provider", p.name)),
	)
	defer span.End()

	start := time.Now()
	s.logger.Debug("provider started", slog.String("provider", p.name))
	v, err := p.compute(ctx, s.ectx)
	recordComponent(ctx, "provider", p.name, err == nil, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider failed")
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("provider failed", slog.String("provider", p.name), slog.Any("error", err))
		}
		return zero, &ComponentError{Component: p.name, Err: err}
	}
	s.logger.Debug("provider completed",
		slog.String("provider", p.name),
		slog.Duration("elapsed", time.Since(start)),
	)
	return v, nil
}
