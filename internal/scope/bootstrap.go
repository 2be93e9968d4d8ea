package scope

import (
	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/cryguy/jsworker/internal/channel"
	"github.com/cryguy/jsworker/internal/core"
	"github.com/cryguy/jsworker/internal/eventloop"
	"github.com/cryguy/jsworker/internal/lifecycle"
)

// bootstrapJS builds the worker global scope on top of the Go bindings
// registered by setupScope. Handler slots are read at dispatch time, so
// reassigning onmessage/onerror/onclose takes effect for the next event.
const bootstrapJS = `
(function() {
	var g = globalThis;
	var indirectEval = g.eval;
	g.self = g;
	g.global = g;

	function text(v) {
		return v === undefined || v === null ? '' : String(v);
	}

	function describe(e, op) {
		var d = { op: op, name: '', message: '', stack: '' };
		try {
			if (e !== null && typeof e === 'object') {
				d.name = text(e.name);
				d.message = text(e.message);
				d.stack = text(e.stack);
				if (e.fileName !== undefined) d.filename = text(e.fileName);
				if (typeof e.lineNumber === 'number') d.lineno = e.lineNumber;
				if (typeof e.columnNumber === 'number') d.colno = e.columnNumber;
			} else {
				d.message = text(e);
			}
		} catch (ignored) {}
		try {
			d.value = __clonePayload(e);
		} catch (ignored) {
			d.value = null;
		}
		return JSON.stringify(d);
	}

	function reportFault(e, op) {
		var handler = g.onerror;
		var bound = typeof handler === 'function';
		var threw = false;
		var handled = false;
		var secondary;
		if (bound) {
			try {
				handled = handler.call(g, e) === true;
			} catch (err) {
				threw = true;
				secondary = err;
			}
		}
		__worker_fault(describe(e, op), bound ? 1 : 0, threw ? 1 : 0, handled ? 1 : 0);
		if (threw) __worker_fault(describe(secondary, 'onerror'), 0, 0, 0);
	}

	function close() {
		if (!__worker_close()) return;
		var handler = g.onclose;
		if (typeof handler !== 'function') return;
		try {
			handler.call(g);
		} catch (e) {
			reportFault(e, 'onclose');
		}
	}

	g.postMessage = function(value) {
		if (arguments.length < 1) throw new TypeError("postMessage requires 1 argument");
		__worker_post(JSON.stringify(__clonePayload(value)));
	};
	g.close = close;
	g.onmessage = null;
	g.onerror = null;
	g.onclose = null;

	Object.defineProperty(g, '__uncaught', { value: reportFault });
	Object.defineProperty(g, '__worker_hostClose', { value: close });
	Object.defineProperty(g, '__worker_dispatch', {
		value: function(payload) {
			var data = JSON.parse(payload);
			var handler = g.onmessage;
			if (typeof handler !== 'function') return;
			try {
				handler.call(g, { data: data, type: 'message', target: g });
			} catch (e) {
				reportFault(e, 'onmessage');
			}
		}
	});
	Object.defineProperty(g, '__worker_evaluate', {
		value: function() {
			var src = g.__worker_source;
			delete g.__worker_source;
			try {
				indirectEval(src);
			} catch (e) {
				reportFault(e, 'script');
			}
		}
	});
})();
`

// faultReport is the JSON shape produced by describe() in bootstrapJS.
type faultReport struct {
	Op       string `json:"op"`
	Name     string `json:"name"`
	Message  string `json:"message"`
	Stack    string `json:"stack"`
	Filename string `json:"filename"`
	Line     int    `json:"lineno"`
	Column   int    `json:"colno"`
	Value    any    `json:"value"`
}

func (r faultReport) toError() *core.Error {
	e := core.Runtime(r.Message)
	e.Op = r.Op
	e.Name = r.Name
	e.Stack = r.Stack
	e.Filename = r.Filename
	e.Line = r.Line
	e.Column = r.Column
	e.Value = r.Value
	return e
}

// setupScope registers the Go side of the worker global scope and
// evaluates bootstrapJS. It has the webapi.SetupFunc shape.
func (c *Context) setupScope(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.RegisterFunc("__worker_post", func(payload string) {
		c.emit(channel.Message{Kind: channel.Data, Payload: payload})
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__worker_close", func() int {
		if c.state.Advance(lifecycle.Closing) {
			c.log.Debug("worker closing")
			return 1
		}
		return 0
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__worker_fault", func(desc string, bound, threw, handled int) {
		var report faultReport
		if err := sonic.ConfigStd.UnmarshalFromString(desc, &report); err != nil {
			report = faultReport{Op: "unknown", Message: desc}
		}
		c.fault(report.toError(), lifecycle.DispositionOf(bound != 0, threw != 0, handled != 0))
	}); err != nil {
		return err
	}

	return rt.Eval(bootstrapJS)
}

// fault counts a runtime fault and forwards it to the creator unless the
// worker's onerror suppressed it.
func (c *Context) fault(e *core.Error, disp lifecycle.Disposition) {
	c.metrics.Faults.WithLabelValues(string(e.Kind), disp.String()).Inc()
	c.log.Debug("worker fault",
		zap.String("op", e.Op),
		zap.String("name", e.Name),
		zap.String("message", e.Detail),
		zap.Stringer("disposition", disp),
	)
	if disp == lifecycle.Suppress {
		return
	}
	c.emit(channel.Message{Kind: channel.Fault, Fault: e})
}
