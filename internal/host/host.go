// Package host runs a creator written in JavaScript. The host script gets
// a Worker class; worker events are delivered on the host's own turn loop,
// which doubles as the engine's Dispatcher.
package host

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cryguy/jsworker/internal/channel"
	"github.com/cryguy/jsworker/internal/core"
	"github.com/cryguy/jsworker/internal/engine"
	"github.com/cryguy/jsworker/internal/eventloop"
	"github.com/cryguy/jsworker/internal/logging"
	"github.com/cryguy/jsworker/internal/webapi"
)

// Host owns the creator VM and the engine its workers run on. A Host runs
// one script; create a new one for the next.
type Host struct {
	cfg    core.EngineConfig
	spawnU core.UnitFactory
	engine *engine.Engine
	log    *zap.Logger
	setup  []webapi.SetupFunc
	reg    prometheus.Registerer

	tasks *channel.Queue[func()]
	el    *eventloop.EventLoop

	// owned by the goroutine inside Run
	unit    core.Unit
	workers map[int]*engine.Handle
	nextID  int
	failure error
}

var _ engine.Dispatcher = (*Host)(nil)

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger for the host and its workers.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) { h.log = l }
}

// WithSetup adds setup functions run in the host VM after the standard
// globals and the Worker class.
func WithSetup(fns ...webapi.SetupFunc) Option {
	return func(h *Host) { h.setup = append(h.setup, fns...) }
}

// WithRegisterer registers the engine metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(h *Host) { h.reg = reg }
}

// New creates a host whose VM and workers are spawned by spawn.
func New(cfg core.EngineConfig, loader core.ScriptLoader, spawn core.UnitFactory, opts ...Option) (*Host, error) {
	h := &Host{
		cfg:     cfg,
		spawnU:  spawn,
		tasks:   channel.NewQueue[func()](),
		el:      eventloop.New(),
		workers: make(map[int]*engine.Handle),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logging.Logger()
	}

	eng, err := engine.New(cfg, loader,
		engine.WithUnitFactory(spawn),
		engine.WithDispatcher(h),
		engine.WithLogger(h.log),
		engine.WithRegisterer(h.reg),
	)
	if err != nil {
		return nil, fmt.Errorf("creating host engine: %w", err)
	}
	h.engine = eng
	return h, nil
}

// Engine returns the engine the host's workers run on.
func (h *Host) Engine() *engine.Engine {
	return h.engine
}

// Dispatch queues task for the host loop. It implements engine.Dispatcher.
func (h *Host) Dispatch(task func()) {
	h.tasks.Push(task)
}

// Run evaluates script as the creator and services worker events and
// timers until nothing is left to do: no queued events, no pending timers
// and no live workers. It returns the first uncaught host exception, or
// ctx.Err() when ctx ends first. Every worker is terminated on return.
func (h *Host) Run(ctx context.Context, script *core.Script) (err error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer func() {
		h.tasks.Close()
		sctx, cancel := context.WithTimeout(context.Background(), h.cfg.TerminateGrace+time.Second)
		defer cancel()
		err = errors.Join(err, h.engine.Shutdown(sctx))
	}()

	unit, err := h.spawnU(h.cfg)
	if err != nil {
		return fmt.Errorf("starting host VM: %w", err)
	}
	h.unit = unit
	defer func() {
		h.el.Reset()
		unit.Close()
	}()

	setup := append(webapi.Standard(h.log.With(zap.String("worker_id", "host"))), h.setupWorkers)
	if err := webapi.Install(unit, h.el, append(setup, h.setup...)...); err != nil {
		return fmt.Errorf("installing host globals: %w", err)
	}

	if err := unit.EvalNamed(script.Name, script.Source); err != nil {
		return err
	}
	unit.RunMicrotasks()

	return h.loop(ctx)
}

func (h *Host) loop(ctx context.Context) error {
	ready := h.tasks.Ready()
	for {
		for h.failure == nil {
			task, ok := h.tasks.Pop()
			if !ok {
				break
			}
			task()
			h.unit.RunMicrotasks()
		}
		for h.failure == nil && h.el.FireNext(h.unit, time.Now()) {
		}
		if h.failure != nil {
			return h.failure
		}
		if h.tasks.Len() > 0 {
			continue
		}
		if len(h.workers) == 0 && !h.el.HasPending() {
			return nil
		}

		if err := h.wait(ctx, ready); err != nil {
			return err
		}
	}
}

// wait blocks until a task is queued, the next timer is due or ctx ends.
func (h *Host) wait(ctx context.Context, ready <-chan struct{}) error {
	var due <-chan time.Time
	if next, ok := h.el.NextDeadline(); ok {
		t := time.NewTimer(time.Until(next))
		defer t.Stop()
		due = t.C
	}
	select {
	case <-ready:
	case <-due:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// fail records the first uncaught host exception; Run returns it.
func (h *Host) fail(err error) {
	if h.failure == nil {
		h.failure = err
	}
}
