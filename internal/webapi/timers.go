package webapi

import (
	"time"

	"github.com/cryguy/jsworker/internal/core"
	"github.com/cryguy/jsworker/internal/eventloop"
)

// timersJS is the JavaScript polyfill for setTimeout/setInterval/clearTimeout/clearInterval.
// A throwing callback is handed to globalThis.__uncaught when the host
// installed one.
const timersJS = `
(function() {
	var callbacks = {};
	function delayOf(d) {
		d = Number(d);
		return (d > 0 && isFinite(d)) ? Math.floor(d) : 0;
	}
	function schedule(fn, delay, extra, interval) {
		if (typeof fn !== 'function') return 0;
		var id = __timerRegister(delayOf(delay), interval ? 1 : 0);
		callbacks[id] = { fn: fn, args: extra, interval: interval };
		return id;
	}
	globalThis.setTimeout = function(fn, delay) {
		return schedule(fn, delay, Array.prototype.slice.call(arguments, 2), false);
	};
	globalThis.setInterval = function(fn, interval) {
		return schedule(fn, interval, Array.prototype.slice.call(arguments, 2), true);
	};
	globalThis.clearTimeout = globalThis.clearInterval = function(id) {
		if (typeof id !== 'number') return;
		__timerClear(id);
		delete callbacks[id];
	};
	globalThis.__timerFire = function(id) {
		var entry = callbacks[id];
		if (!entry) return;
		if (!entry.interval) delete callbacks[id];
		try {
			entry.fn.apply(globalThis, entry.args);
		} catch (e) {
			if (typeof globalThis.__uncaught !== 'function') throw e;
			globalThis.__uncaught(e, 'timer');
		}
	};
})();
`

// SetupTimers registers Go-backed setTimeout/setInterval/clearTimeout/clearInterval.
func SetupTimers(rt core.JSRuntime, el *eventloop.EventLoop) error {
	if err := rt.RegisterFunc("__timerRegister", func(delayMs int, isInterval int) int {
		delay := time.Duration(delayMs) * time.Millisecond
		return el.RegisterTimer(delay, isInterval != 0)
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__timerClear", func(id int) {
		el.ClearTimer(id)
	}); err != nil {
		return err
	}

	return rt.Eval(timersJS)
}
