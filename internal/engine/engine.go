// Package engine is the creator side of the worker engine: it validates
// construction, spawns execution contexts and delivers what they post
// through a single-threaded Dispatcher.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cryguy/jsworker/internal/core"
	"github.com/cryguy/jsworker/internal/logging"
	"github.com/cryguy/jsworker/internal/metrics"
	"github.com/cryguy/jsworker/internal/webapi"
)

// Engine spawns workers and keeps every running worker reachable until
// its context has stopped.
type Engine struct {
	cfg        core.EngineConfig
	loader     core.ScriptLoader
	spawn      core.UnitFactory
	dispatcher Dispatcher
	ownLoop    *Loop
	log        *zap.Logger
	metrics    *metrics.Metrics
	registerer prometheus.Registerer
	setup      []webapi.SetupFunc

	live   sync.Map // worker id -> *Handle
	closed atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Defaults to logging.Logger().
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithDispatcher routes creator callbacks through d instead of a private
// Loop.
func WithDispatcher(d Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithRegisterer registers the engine metrics with reg instead of a
// private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.registerer = reg }
}

// WithUnitFactory selects the JS engine workers run on.
func WithUnitFactory(f core.UnitFactory) Option {
	return func(e *Engine) { e.spawn = f }
}

// WithSetup adds setup functions run in every worker after the standard
// globals, e.g. to expose custom Go bindings.
func WithSetup(fns ...webapi.SetupFunc) Option {
	return func(e *Engine) { e.setup = append(e.setup, fns...) }
}

// New creates an engine. A loader and a unit factory are required.
func New(cfg core.EngineConfig, loader core.ScriptLoader, opts ...Option) (*Engine, error) {
	e := &Engine{cfg: cfg, loader: loader}
	for _, opt := range opts {
		opt(e)
	}
	if loader == nil {
		return nil, errors.New("engine: script loader is required")
	}
	if e.spawn == nil {
		return nil, errors.New("engine: unit factory is required")
	}
	if e.log == nil {
		e.log = logging.Logger()
	}
	e.metrics = metrics.New(e.registerer)
	if e.dispatcher == nil {
		e.ownLoop = NewLoop(e.log)
		e.dispatcher = e.ownLoop
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() core.EngineConfig {
	return e.cfg
}

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// NewWorker validates args, spawns the worker's execution context and
// returns its handle immediately. Script loading happens on the worker
// thread; a script that cannot be loaded is reported through OnError.
func (e *Engine) NewWorker(args ...any) (*Handle, error) {
	if e == nil || e.spawn == nil || e.dispatcher == nil {
		return nil, core.Invocation(opConstruct, "engine is not initialized; construct it with New")
	}
	if e.closed.Load() {
		return nil, core.Invocation(opConstruct, "engine has been shut down")
	}
	designator, err := Designator(args...)
	if err != nil {
		return nil, err
	}

	h := newHandle(e, designator)
	e.live.Store(h.id, h)
	e.metrics.WorkersSpawned.Inc()
	e.metrics.WorkersActive.Inc()
	e.log.Debug("worker spawned", zap.String("worker_id", h.id), zap.String("script", designator))

	h.start()
	return h, nil
}

// Live returns the number of workers whose context has not stopped.
func (e *Engine) Live() int {
	n := 0
	e.live.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Shutdown terminates every live worker, refuses new ones and waits until
// all contexts have stopped or ctx is done.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.closed.Store(true)

	g, gctx := errgroup.WithContext(ctx)
	e.live.Range(func(_, v any) bool {
		h := v.(*Handle)
		h.Terminate()
		g.Go(func() error {
			select {
			case <-h.Done():
				return nil
			case <-gctx.Done():
				return fmt.Errorf("worker %s did not stop: %w", h.id, gctx.Err())
			}
		})
		return true
	})
	err := g.Wait()

	if e.ownLoop != nil {
		e.ownLoop.Close()
	}
	return err
}

func (e *Engine) forget(h *Handle) {
	if _, ok := e.live.LoadAndDelete(h.id); ok {
		e.metrics.WorkersActive.Dec()
	}
}
