package scope

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/cryguy/jsworker/internal/channel"
	"github.com/cryguy/jsworker/internal/core"
	"github.com/cryguy/jsworker/internal/lifecycle"
	"github.com/cryguy/jsworker/internal/webapi"
)

// run is the body of the worker goroutine. JS engines are bound to the
// thread that created them, so the goroutine stays on one OS thread.
func (c *Context) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(c.stopped)
	defer c.finish()
	defer func() {
		if r := recover(); r != nil {
			if c.state.Terminated() {
				c.log.Debug("worker unit panicked after terminate", zap.Any("panic", r))
				return
			}
			c.log.Error("worker unit panicked", zap.Any("panic", r))
			c.fault(core.Runtime(fmt.Sprint(r)), lifecycle.Propagate)
		}
	}()

	script, err := c.opts.Loader.Load(c.opts.Designator)
	if err != nil {
		c.loadFailed(err)
		return
	}
	if c.state.Terminated() {
		return
	}

	unit, err := c.opts.Spawn(c.opts.Config)
	if err != nil {
		e := core.Runtime("execution unit could not be started")
		e.Op = "spawn"
		e.Cause = err
		c.fault(e, lifecycle.Propagate)
		return
	}
	c.setUnit(unit)

	setup := append(webapi.Standard(c.log), c.setupScope)
	setup = append(setup, c.opts.Setup...)
	if err := webapi.Install(unit, c.el, setup...); err != nil {
		e := core.Runtime("worker scope could not be installed")
		e.Op = "setup"
		e.Cause = err
		c.fault(e, lifecycle.Propagate)
		return
	}

	if !c.evaluate(unit, script) {
		return
	}
	if c.state.Transition(lifecycle.Created, lifecycle.Running) {
		c.log.Debug("worker running")
	}
	c.loop(unit)
}

// loadFailed reports a script that could not be resolved or compiled.
func (c *Context) loadFailed(err error) {
	c.metrics.LoadFailures.Inc()

	var e *core.Error
	if !errors.As(err, &e) || e.Kind != core.KindScriptLoad {
		e = core.ScriptLoad(c.opts.Designator, err)
	}
	c.log.Warn("worker script failed to load", zap.Error(e))
	c.metrics.Faults.WithLabelValues(string(e.Kind), lifecycle.Propagate.String()).Inc()
	c.emit(channel.Message{Kind: channel.Fault, Fault: e})
}

// evaluate runs the top-level script inside the scope's own try/catch, so
// an uncaught throw reaches onerror with the thrown value itself and the
// worker keeps running. Syntax is checked by the loader before this point.
func (c *Context) evaluate(unit core.Unit, script *core.Script) bool {
	src := script.Source + "\n//# sourceURL=" + script.Name
	err := unit.SetGlobal("__worker_source", src)
	if err == nil {
		err = unit.Eval("__worker_evaluate()")
	}
	unit.RunMicrotasks()
	if c.state.Terminated() {
		return false
	}
	if err != nil {
		ex := core.AsException(err)
		e := core.Runtime(ex.Message)
		e.Op = "script"
		e.Name = ex.Name
		e.Stack = ex.Stack
		e.Cause = err
		c.fault(e, lifecycle.Propagate)
	}

	if kind, err := unit.EvalString("typeof globalThis.onmessage"); err == nil && kind != "function" {
		c.log.Debug("worker has no onmessage handler after evaluation", zap.String("onmessage", kind))
	}
	return true
}

// loop services inbound messages and timers until the context leaves the
// Running state. One inbound message is handled per turn, followed by any
// timers that are due.
func (c *Context) loop(unit core.Unit) {
	ready := c.opts.Channel.Ready(channel.ToWorker)
	for c.running() {
		if msg, ok := c.opts.Channel.TryReceive(channel.ToWorker); ok {
			c.dispatch(unit, msg)
		}
		for c.running() && c.el.FireNext(unit, time.Now()) {
		}
		if !c.running() {
			return
		}
		if c.opts.Channel.Len(channel.ToWorker) > 0 {
			continue
		}
		c.wait(ready)
	}
}

func (c *Context) running() bool {
	return c.state.Load() == lifecycle.Running
}

// wait blocks until a message arrives, the next timer is due, or the
// context is terminated.
func (c *Context) wait(ready <-chan struct{}) {
	var due <-chan time.Time
	if next, ok := c.el.NextDeadline(); ok {
		t := time.NewTimer(time.Until(next))
		defer t.Stop()
		due = t.C
	}
	select {
	case <-ready:
	case <-due:
	case <-c.state.Done():
	}
}

// dispatch hands one inbound message to the script.
func (c *Context) dispatch(unit core.Unit, msg channel.Message) {
	var err error
	switch msg.Kind {
	case channel.Data:
		c.metrics.Messages.WithLabelValues(channel.ToWorker.String(), "delivered").Inc()
		if err = unit.SetGlobal("__worker_inbox", msg.Payload); err == nil {
			err = unit.Eval("__worker_dispatch(globalThis.__worker_inbox)")
		}
	case channel.Close:
		err = unit.Eval("__worker_hostClose()")
	default:
		c.log.Warn("unexpected message kind on inbound queue", zap.Stringer("kind", msg.Kind))
		return
	}
	unit.RunMicrotasks()

	if err != nil && !c.state.Terminated() {
		ex := core.AsException(err)
		e := core.Runtime(ex.Message)
		e.Op = "dispatch"
		e.Name = ex.Name
		e.Stack = ex.Stack
		e.Cause = err
		c.fault(e, lifecycle.Propagate)
	}
}

// finish settles the final state and tells the creator the worker is gone.
// Outbound messages queued before this point stay ahead of the exit marker.
func (c *Context) finish() {
	c.state.Advance(lifecycle.Terminated)
	c.discard()
	c.emit(channel.Message{Kind: channel.Exit})
	c.el.Reset()
	c.closeUnit()

	c.graceMu.Lock()
	if c.grace != nil {
		c.grace.Stop()
	}
	c.graceMu.Unlock()
	c.log.Debug("worker stopped")
}
