// Package explorer runs explorations: it resolves the columns to explore,
// wires their components through memoized providers, runs the publishers
// concurrently and collects the metrics they emit.
package explorer

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Status is the state of an exploration.
type Status string

const (
	StatusProcessing Status = "Processing"
	StatusComplete   Status = "Complete"
	StatusError      Status = "Error"
	StatusCanceled   Status = "Canceled"
)

func (s Status) Finished() bool { return s != StatusProcessing }

// DefaultMaxConcurrency bounds the publishers running at once.
const DefaultMaxConcurrency = 8

// Options tune a run.
type Options struct {
	// Only restricts the run to the named publishers. Empty runs all.
	Only []string
	// MaxConcurrency bounds concurrently running publishers.
	MaxConcurrency int
	// Seed makes sampling reproducible. Zero picks a random seed.
	Seed   uint64
	Logger *slog.Logger
}

// Exploration is one run over an ExplorerContext.
type Exploration struct {
	ID      string
	Context *ExplorerContext
	Started time.Time

	cancel  context.CancelFunc
	metrics *MetricSet
	logger  *slog.Logger
	done    chan struct{}

	mu       sync.Mutex
	status   Status
	errs     []*ComponentError
	finished time.Time
}

// Run starts an exploration and returns immediately. Cancel ctx or call
// Cancel to stop it.
func Run(ctx context.Context, ec *ExplorerContext, build Builder, opts Options) *Exploration {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.Seed == 0 {
		opts.Seed = rand.Uint64()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger = logger.With(slog.String("exploration_id", id))

	ctx, cancel := context.WithCancel(ctx)
	e := &Exploration{
		ID:      id,
		Context: ec,
		Started: time.Now(),
		cancel:  cancel,
		metrics: NewMetricSet(),
		logger:  logger,
		done:    make(chan struct{}),
		status:  StatusProcessing,
	}
	scope := newScope(ctx, ec, logger, opts.Seed)
	pubs := filterPublishers(build(scope), opts.Only)
	go e.run(ctx, pubs, opts.MaxConcurrency)
	return e
}

func filterPublishers(pubs []Publisher, only []string) []Publisher {
	if len(only) == 0 {
		return pubs
	}
	keep := make(map[string]bool, len(only))
	for _, n := range only {
		keep[n] = true
	}
	out := pubs[:0:0]
	for _, p := range pubs {
		if keep[p.Name] {
			out = append(out, p)
		}
	}
	return out
}

func (e *Exploration) run(ctx context.Context, pubs []Publisher, limit int) {
	ctx, span := tracer.Start(ctx, "explorer.Exploration",
		trace.WithAttributes(
			attribute.String("explorer.exploration_id", e.ID),
			attribute.String("explorer.data_source", e.Context.DataSource),
			attribute.String("explorer.table", e.Context.Table),
			attribute.Int("explorer.publishers", len(pubs)),
		),
	)
	defer span.End()
	recordExplorationStarted(ctx)

	e.logger.Info("exploration started",
		slog.String("data_source", e.Context.DataSource),
		slog.String("table", e.Context.Table),
		slog.Int("columns", len(e.Context.Columns)),
		slog.Int("publishers", len(pubs)),
	)

	var g errgroup.Group
	g.SetLimit(limit)
	for _, p := range pubs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			e.runPublisher(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	e.mu.Lock()
	failed := false
	for _, err := range e.errs {
		if !err.Optional {
			failed = true
		}
	}
	switch {
	case ctx.Err() != nil:
		e.status = StatusCanceled
	case failed:
		e.status = StatusError
	default:
		e.status = StatusComplete
	}
	e.finished = time.Now()
	status := e.status
	e.mu.Unlock()

	e.cancel()
	e.metrics.close()
	close(e.done)

	if status == StatusError {
		span.SetStatus(codes.Error, "mandatory component failed")
	}
	recordExplorationFinished(ctx, status)
	e.logger.Info("exploration finished",
		slog.String("status", string(status)),
		slog.Int("metrics", e.metrics.Len()),
		slog.Duration("elapsed", e.finished.Sub(e.Started)),
	)
}

func (e *Exploration) runPublisher(ctx context.Context, p Publisher) {
	if ctx.Err() != nil {
		return
	}
	ctx, span := tracer.Start(ctx, "explorer.Publisher",
		trace.WithAttributes(
			attribute.String("explorer.publisher", p.Name),
			attribute.Bool("explorer.optional", p.Optional),
		),
	)
	defer span.End()

	start := time.Now()
	e.logger.Debug("component started", slog.String("component", p.Name))
	ms, err := p.Publish(ctx)
	if err == nil {
		err = e.metrics.Add(ms...)
	}
	recordComponent(ctx, "publisher", p.Name, err == nil, time.Since(start))
	if err == nil {
		e.logger.Debug("component completed",
			slog.String("component", p.Name),
			slog.Int("metrics", len(ms)),
			slog.Duration("elapsed", time.Since(start)),
		)
		return
	}
	if ctx.Err() != nil {
		// Failures after cancellation are its consequence.
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "component failed")
	cerr := &ComponentError{Component: p.Name, Optional: p.Optional, Err: err}
	e.mu.Lock()
	e.errs = append(e.errs, cerr)
	e.mu.Unlock()
	level := slog.LevelError
	if p.Optional {
		level = slog.LevelWarn
	}
	e.logger.Log(ctx, level, "component failed",
		slog.String("component", p.Name),
		slog.Bool("optional", p.Optional),
		slog.Any("error", err),
	)
}

// Cancel stops the exploration. Published metrics are kept.
func (e *Exploration) Cancel() { e.cancel() }

func (e *Exploration) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Metrics returns the metrics published so far.
func (e *Exploration) Metrics() []Metric { return e.metrics.Snapshot() }

// Errors returns the component failures so far, optional ones included.
func (e *Exploration) Errors() []*ComponentError {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*ComponentError(nil), e.errs...)
}

// Done is closed when the exploration has finished.
func (e *Exploration) Done() <-chan struct{} { return e.done }

// Finished returns when the exploration finished, or the zero time.
func (e *Exploration) Finished() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finished
}

// Wait blocks until the exploration finishes or ctx is done.
func (e *Exploration) Wait(ctx context.Context) (Status, error) {
	select {
	case <-e.done:
		return e.Status(), nil
	case <-ctx.Done():
		return e.Status(), ctx.Err()
	}
}

// Updates streams every metric as it is published, starting with those
// already published. The channel is closed once the exploration finishes and
// every metric was delivered, or when ctx is done.
func (e *Exploration) Updates(ctx context.Context) <-chan Metric {
	out := make(chan Metric)
	go func() {
		defer close(out)
		next := 0
		for {
			ms, changed, closed := e.metrics.since(next)
			for _, m := range ms {
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
			next += len(ms)
			if closed && len(ms) == 0 {
				return
			}
			if len(ms) > 0 {
				continue
			}
			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Result is a snapshot of an exploration.
type Result struct {
	ID         string    `json:"id"`
	DataSource string    `json:"data_source"`
	Table      string    `json:"table"`
	Columns    []Column  `json:"columns"`
	Status     Status    `json:"status"`
	Metrics    []Metric  `json:"metrics"`
	Errors     []string  `json:"errors,omitempty"`
	Started    time.Time `json:"started"`
}

func (e *Exploration) Result() Result {
	errs := e.Errors()
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return Result{
		ID:         e.ID,
		DataSource: e.Context.DataSource,
		Table:      e.Context.Table,
		Columns:    e.Context.Columns,
		Status:     e.Status(),
		Metrics:    e.Metrics(),
		Errors:     msgs,
		Started:    e.Started,
	}
}
