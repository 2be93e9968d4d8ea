package host

import (
	"fmt"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/cryguy/jsworker/internal/core"
	"github.com/cryguy/jsworker/internal/engine"
	"github.com/cryguy/jsworker/internal/eventloop"
)

// workerJS defines the Worker class of the creator global scope. Worker
// objects stay in the live table until their thread has stopped, so a
// worker keeps running and delivering even when the script dropped every
// reference to it.
const workerJS = `
(function() {
	var g = globalThis;
	var live = {};

	function describe(e, op) {
		var d = { op: op, name: '', message: '', stack: '' };
		try {
			if (e !== null && typeof e === 'object') {
				d.name = e.name === undefined ? '' : String(e.name);
				d.message = e.message === undefined ? '' : String(e.message);
				d.stack = e.stack === undefined ? '' : String(e.stack);
			} else {
				d.message = String(e);
			}
		} catch (ignored) {}
		return JSON.stringify(d);
	}

	function Worker(designator) {
		if (!(this instanceof Worker)) {
			throw new TypeError("Class constructor Worker cannot be invoked without 'new'");
		}
		if (arguments.length !== 1) {
			throw new TypeError("Worker expects exactly 1 argument, got " + arguments.length);
		}
		if (typeof designator !== 'string') {
			throw new TypeError("Worker script designator must be a string, got " + (designator === null ? 'null' : typeof designator));
		}
		var id = __host_spawn(designator);
		Object.defineProperty(this, '__id', { value: id });
		this.onmessage = null;
		this.onerror = null;
		live[id] = this;
	}

	Worker.prototype.postMessage = function(value) {
		if (arguments.length !== 1) {
			throw new TypeError("Worker.postMessage expects exactly 1 argument, got " + arguments.length);
		}
		__host_post(this.__id, JSON.stringify(__clonePayload(value)));
	};

	Worker.prototype.terminate = function() {
		__host_terminate(this.__id);
	};

	g.Worker = Worker;

	Object.defineProperty(g, '__uncaught', {
		value: function(e, op) { __host_uncaught(describe(e, op)); }
	});

	Object.defineProperty(g, '__host_deliver', {
		value: function(id, kind, payload) {
			var w = live[id];
			if (!w) return 0;
			var handler = kind === 'message' ? w.onmessage : w.onerror;
			if (typeof handler !== 'function') return 0;
			var ev;
			if (kind === 'message') {
				ev = { type: 'message', data: JSON.parse(payload), target: w };
			} else {
				var d = JSON.parse(payload);
				ev = {
					type: 'error',
					kind: d.kind,
					name: d.name,
					message: d.message,
					stack: d.stack,
					filename: d.filename,
					lineno: d.lineno,
					colno: d.colno,
					error: d.error,
					target: w
				};
			}
			try {
				handler.call(w, ev);
			} catch (e) {
				g.__uncaught(e, 'worker.on' + kind);
			}
			return 1;
		}
	});

	Object.defineProperty(g, '__host_release', {
		value: function(id) { delete live[id]; }
	});
})();
`

// errorPayload is the JSON form of a worker fault handed to a JS creator.
type errorPayload struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Message  string `json:"message"`
	Stack    string `json:"stack"`
	Filename string `json:"filename"`
	Line     int    `json:"lineno"`
	Column   int    `json:"colno"`
	Error    any    `json:"error"`
}

func newErrorPayload(e *core.Error) errorPayload {
	if e == nil {
		return errorPayload{Kind: string(core.KindRuntime), Message: "worker error"}
	}
	return errorPayload{
		Kind:     string(e.Kind),
		Name:     e.Name,
		Message:  e.Detail,
		Stack:    e.Stack,
		Filename: e.Filename,
		Line:     e.Line,
		Column:   e.Column,
		Error:    e.Value,
	}
}

// setupWorkers installs the Worker class and its Go bindings.
func (h *Host) setupWorkers(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.RegisterFunc("__host_spawn", func(designator string) (int, error) {
		return h.spawn(designator)
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__host_post", func(id int, payload string) {
		if w, ok := h.workers[id]; ok {
			if err := w.PostJSON(payload); err != nil {
				h.log.Warn("posting to worker", zap.Int("worker", id), zap.Error(err))
			}
		}
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__host_terminate", func(id int) {
		if w, ok := h.workers[id]; ok {
			w.Terminate()
		}
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__host_uncaught", func(desc string) {
		var d struct {
			Op      string `json:"op"`
			Name    string `json:"name"`
			Message string `json:"message"`
			Stack   string `json:"stack"`
		}
		if err := sonic.ConfigStd.UnmarshalFromString(desc, &d); err != nil {
			d.Message = desc
		}
		h.log.Error("uncaught exception in host script",
			zap.String("op", d.Op), zap.String("name", d.Name), zap.String("message", d.Message))
		h.fail(&core.Exception{Name: d.Name, Message: d.Message, Stack: d.Stack})
	}); err != nil {
		return err
	}

	return rt.Eval(workerJS)
}

// spawn creates a worker for the Worker constructor and wires its
// callbacks to the JS object registered under the returned id.
func (h *Host) spawn(designator string) (int, error) {
	w, err := h.engine.NewWorker(designator)
	if err != nil {
		return 0, err
	}
	h.nextID++
	id := h.nextID
	h.workers[id] = w

	w.OnMessage(func(ev engine.MessageEvent) {
		h.deliver(id, "message", ev.Raw)
	})
	w.OnError(func(ev engine.ErrorEvent) {
		payload, err := sonic.ConfigStd.MarshalToString(newErrorPayload(ev.Err))
		if err != nil {
			h.log.Error("encoding worker error", zap.Error(err))
			return
		}
		h.deliver(id, "error", payload)
	})
	go func() {
		<-w.Done()
		h.Dispatch(func() { h.release(id) })
	}()
	return id, nil
}

// deliver runs on the host loop and hands one event to the JS object.
func (h *Host) deliver(id int, kind, payload string) {
	if err := h.unit.SetGlobal("__host_inbox", payload); err != nil {
		h.log.Error("staging worker event", zap.Error(err))
		return
	}
	handled, err := h.unit.EvalInt(fmt.Sprintf("__host_deliver(%d, %q, globalThis.__host_inbox)", id, kind))
	if err != nil {
		h.fail(err)
		return
	}
	if handled == 0 {
		h.log.Debug("worker event has no handler", zap.Int("worker", id), zap.String("kind", kind))
	}
}

func (h *Host) release(id int) {
	delete(h.workers, id)
	if err := h.unit.Eval(fmt.Sprintf("__host_release(%d)", id)); err != nil {
		h.fail(err)
	}
}
