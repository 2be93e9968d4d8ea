// Package scope implements the worker execution context: the run loop
// that owns one execution unit, evaluates the worker script and
// dispatches inbound messages, timers and microtasks to it.
package scope

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cryguy/jsworker/internal/channel"
	"github.com/cryguy/jsworker/internal/core"
	"github.com/cryguy/jsworker/internal/eventloop"
	"github.com/cryguy/jsworker/internal/lifecycle"
	"github.com/cryguy/jsworker/internal/logging"
	"github.com/cryguy/jsworker/internal/metrics"
	"github.com/cryguy/jsworker/internal/webapi"
)

// Outlet is told whenever a message was queued toward the creator.
type Outlet interface {
	Notify()
}

// Options configures a Context.
type Options struct {
	ID         string
	Designator string
	Loader     core.ScriptLoader
	Spawn      core.UnitFactory
	Config     core.EngineConfig
	Channel    *channel.Channel
	Outlet     Outlet
	Logger     *zap.Logger
	Metrics    *metrics.Metrics

	// Setup runs after the standard globals and the worker scope are
	// installed, before the script is evaluated.
	Setup []webapi.SetupFunc
}

// Context is the worker side of a worker pair.
type Context struct {
	opts    Options
	state   *lifecycle.Machine
	el      *eventloop.EventLoop
	log     *zap.Logger
	metrics *metrics.Metrics
	stopped chan struct{}

	unitMu     sync.Mutex // guards unit against Interrupt during Close
	unit       core.Unit
	unitClosed bool

	graceMu sync.Mutex
	grace   *time.Timer
}

// New prepares a context. Nothing runs until Start.
func New(opts Options) *Context {
	log := opts.Logger
	if log == nil {
		log = logging.Logger()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	return &Context{
		opts:    opts,
		state:   lifecycle.NewMachine(),
		el:      eventloop.New(),
		log:     log.With(zap.String("worker_id", opts.ID), zap.String("script", opts.Designator)),
		metrics: m,
		stopped: make(chan struct{}),
	}
}

// Start launches the run loop on its own goroutine and returns at once.
func (c *Context) Start() {
	go c.run()
}

// State returns the context's lifecycle state.
func (c *Context) State() lifecycle.State {
	return c.state.Load()
}

// Stopped is closed once the run loop has exited and the unit is released.
func (c *Context) Stopped() <-chan struct{} {
	return c.stopped
}

// Terminate stops the context without running onclose. Undelivered inbound
// messages are discarded. A handler still running gets Config.TerminateGrace
// to return before the unit is interrupted. Calling Terminate more than
// once is a no-op.
func (c *Context) Terminate() {
	if !c.state.Advance(lifecycle.Terminated) {
		return
	}
	c.discard()
	c.log.Debug("worker terminated")

	c.graceMu.Lock()
	defer c.graceMu.Unlock()
	select {
	case <-c.stopped:
		return
	default:
	}
	c.grace = time.AfterFunc(c.opts.Config.TerminateGrace, c.interrupt)
}

func (c *Context) interrupt() {
	c.unitMu.Lock()
	defer c.unitMu.Unlock()
	if c.unit != nil && !c.unitClosed {
		c.log.Warn("interrupting worker after terminate grace period",
			zap.Duration("grace", c.opts.Config.TerminateGrace))
		c.unit.Interrupt()
	}
}

// discard closes the inbound queue and counts what it dropped.
func (c *Context) discard() {
	if n := c.opts.Channel.Close(channel.ToWorker); n > 0 {
		c.metrics.Discarded.WithLabelValues(channel.ToWorker.String()).Add(float64(n))
	}
}

// emit queues m toward the creator and wakes the outlet.
func (c *Context) emit(m channel.Message) bool {
	if !c.opts.Channel.Send(channel.ToCreator, m) {
		c.metrics.Messages.WithLabelValues(channel.ToCreator.String(), "dropped").Inc()
		return false
	}
	c.metrics.Messages.WithLabelValues(channel.ToCreator.String(), "sent").Inc()
	if c.opts.Outlet != nil {
		c.opts.Outlet.Notify()
	}
	return true
}

func (c *Context) setUnit(u core.Unit) {
	c.unitMu.Lock()
	c.unit = u
	c.unitMu.Unlock()
}

func (c *Context) closeUnit() {
	c.unitMu.Lock()
	defer c.unitMu.Unlock()
	if c.unit == nil || c.unitClosed {
		return
	}
	c.unitClosed = true
	c.unit.Close()
}
