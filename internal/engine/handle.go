package engine

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cryguy/jsworker/internal/channel"
	"github.com/cryguy/jsworker/internal/clone"
	"github.com/cryguy/jsworker/internal/core"
	"github.com/cryguy/jsworker/internal/lifecycle"
	"github.com/cryguy/jsworker/internal/scope"
)

const opPostMessage = "Worker.postMessage"

// Handle is the creator's reference to one worker. Callbacks run on the
// engine's Dispatcher, one at a time and in the order the worker produced
// them. Each callback slot holds one function; setting it again replaces
// the previous one and nil unbinds it.
type Handle struct {
	id         string
	designator string
	engine     *Engine
	state      *lifecycle.Machine
	ch         *channel.Channel
	ctx        *scope.Context
	log        *zap.Logger

	onMessage atomic.Pointer[func(MessageEvent)]
	onError   atomic.Pointer[func(ErrorEvent)]
	onExit    atomic.Pointer[func()]

	releaseOnce sync.Once
	released    chan struct{}
}

var _ scope.Outlet = (*Handle)(nil)

func newHandle(e *Engine, designator string) *Handle {
	h := &Handle{
		id:         uuid.NewString(),
		designator: designator,
		engine:     e,
		state:      lifecycle.NewMachine(),
		ch:         channel.New(),
		released:   make(chan struct{}),
	}
	h.log = e.log.With(zap.String("worker_id", h.id))
	h.ctx = scope.New(scope.Options{
		ID:         h.id,
		Designator: designator,
		Loader:     e.loader,
		Spawn:      e.spawn,
		Config:     e.cfg,
		Channel:    h.ch,
		Outlet:     h,
		Logger:     e.log,
		Metrics:    e.metrics,
		Setup:      e.setup,
	})
	return h
}

func (h *Handle) start() {
	h.state.Advance(lifecycle.Running)
	h.ctx.Start()
	go func() {
		<-h.ctx.Stopped()
		h.release()
	}()
}

// ID returns the worker's unique id.
func (h *Handle) ID() string {
	return h.id
}

// Designator returns the script designator the worker was created with.
func (h *Handle) Designator() string {
	return h.designator
}

// State returns the handle's lifecycle state.
func (h *Handle) State() lifecycle.State {
	if h == nil || h.state == nil {
		return lifecycle.Created
	}
	return h.state.Load()
}

// Done is closed once the worker's context has stopped and the engine has
// let go of the handle.
func (h *Handle) Done() <-chan struct{} {
	return h.released
}

// OnMessage binds the message callback.
func (h *Handle) OnMessage(fn func(MessageEvent)) {
	if fn == nil {
		h.onMessage.Store(nil)
		return
	}
	h.onMessage.Store(&fn)
}

// OnError binds the error callback. It receives script load failures and
// every fault the worker did not suppress.
func (h *Handle) OnError(fn func(ErrorEvent)) {
	if fn == nil {
		h.onError.Store(nil)
		return
	}
	h.onError.Store(&fn)
}

// OnExit binds a callback run once after the worker stopped on its own,
// i.e. after close() or a load failure. It does not run after Terminate.
func (h *Handle) OnExit(fn func()) {
	if fn == nil {
		h.onExit.Store(nil)
		return
	}
	h.onExit.Store(&fn)
}

// PostMessage sends a copy of exactly one value to the worker. It never
// blocks. Messages posted after Terminate are dropped silently.
func (h *Handle) PostMessage(args ...any) error {
	if h == nil || h.ch == nil {
		return core.Invocation(opPostMessage, "worker is not initialized; construct it with Engine.NewWorker")
	}
	if len(args) != 1 {
		return core.Argument(opPostMessage, "expects exactly 1 argument, got %d", len(args))
	}
	if h.state.Terminated() {
		return nil
	}

	payload, err := clone.Encode(args[0])
	if err != nil {
		e := core.Argument(opPostMessage, "value could not be serialized")
		e.Cause = err
		return e
	}
	h.send(payload)
	return nil
}

// PostJSON sends a payload already in wire form: JSON text produced by a
// clone on the creator's side, as JS creators do.
func (h *Handle) PostJSON(payload string) error {
	if h == nil || h.ch == nil {
		return core.Invocation(opPostMessage, "worker is not initialized; construct it with Engine.NewWorker")
	}
	if h.state.Terminated() {
		return nil
	}
	h.send(payload)
	return nil
}

func (h *Handle) send(payload string) {
	outcome := "sent"
	if !h.ch.Send(channel.ToWorker, channel.Message{Kind: channel.Data, Payload: payload}) {
		outcome = "dropped"
	}
	h.engine.metrics.Messages.WithLabelValues(channel.ToWorker.String(), outcome).Inc()
}

// Terminate stops the worker at once. onclose does not run, undelivered
// messages in both directions are discarded and nothing more is delivered
// to this handle's callbacks. Calling it again is a no-op.
func (h *Handle) Terminate() {
	if h == nil || h.ctx == nil {
		return
	}
	if !h.state.Advance(lifecycle.Terminated) {
		return
	}
	h.ctx.Terminate()
	if n := h.ch.Close(channel.ToCreator); n > 0 {
		h.engine.metrics.Discarded.WithLabelValues(channel.ToCreator.String()).Add(float64(n))
	}
	h.log.Debug("worker terminate requested")
}

// Close asks the worker to close itself after the messages already posted
// to it: its onclose runs and messages it posts until then are still
// delivered. Calling it again is a no-op.
func (h *Handle) Close() {
	if h == nil || h.ch == nil {
		return
	}
	if !h.state.Advance(lifecycle.Closing) {
		return
	}
	h.ch.Send(channel.ToWorker, channel.Message{Kind: channel.Close})
}

// Notify implements scope.Outlet: one delivery task per queued message.
func (h *Handle) Notify() {
	h.engine.dispatcher.Dispatch(h.deliverNext)
}

// deliverNext runs on the dispatcher and delivers the oldest message.
func (h *Handle) deliverNext() {
	msg, ok := h.ch.TryReceive(channel.ToCreator)
	if !ok {
		return
	}

	switch msg.Kind {
	case channel.Data:
		fn := h.onMessage.Load()
		if fn == nil {
			h.engine.metrics.Messages.WithLabelValues(channel.ToCreator.String(), "unhandled").Inc()
			return
		}
		data, err := clone.Decode(msg.Payload)
		if err != nil {
			h.log.Error("dropping undecodable payload", zap.Error(err))
			return
		}
		h.engine.metrics.Messages.WithLabelValues(channel.ToCreator.String(), "delivered").Inc()
		(*fn)(MessageEvent{Data: data, Raw: msg.Payload, Seq: msg.Seq})

	case channel.Fault:
		fn := h.onError.Load()
		if fn == nil {
			h.log.Debug("worker error with no handler bound", zap.Error(msg.Fault))
			return
		}
		(*fn)(ErrorEvent{Err: msg.Fault, Seq: msg.Seq})

	case channel.Exit:
		h.state.Advance(lifecycle.Terminated)
		h.ch.Close(channel.ToCreator)
		if fn := h.onExit.Load(); fn != nil {
			(*fn)()
		}
	}
}

// release drops the engine's reference once the context has stopped.
func (h *Handle) release() {
	h.releaseOnce.Do(func() {
		h.engine.forget(h)
		close(h.released)
	})
}
