package webapi

import (
	"go.uber.org/zap"

	"github.com/cryguy/jsworker/internal/core"
	"github.com/cryguy/jsworker/internal/eventloop"
)

// consoleJS builds globalThis.console on top of the Go-backed __console.
// Objects are rendered through __clonePayload so cyclic values print.
const consoleJS = `
(function() {
	function render(arg) {
		if (typeof arg === 'string') return arg;
		if (arg instanceof Error) return (arg.stack || (arg.name + ': ' + arg.message));
		if (typeof arg === 'object' && arg !== null) {
			try { return JSON.stringify(__clonePayload(arg)); } catch (e) { return '[object Object]'; }
		}
		return String(arg);
	}
	var levels = ['log', 'info', 'warn', 'error', 'debug'];
	var con = {};
	for (var i = 0; i < levels.length; i++) {
		(function(lvl) {
			con[lvl] = function() {
				var parts = [];
				for (var j = 0; j < arguments.length; j++) parts.push(render(arguments[j]));
				__console(lvl, parts.join(' '));
			};
		})(levels[i]);
	}
	con.trace = con.debug;
	con.assert = function(cond) {
		if (cond) return;
		var args = Array.prototype.slice.call(arguments, 1);
		con.error.apply(null, ['Assertion failed'].concat(args));
	};
	globalThis.console = con;
})();
`

// SetupConsole returns a setup function that routes console output to
// log. It relies on __clonePayload being installed first.
func SetupConsole(log *zap.Logger) SetupFunc {
	return func(rt core.JSRuntime, _ *eventloop.EventLoop) error {
		if err := rt.RegisterFunc("__console", func(level, message string) {
			switch level {
			case "error":
				log.Error(message, zap.String("source", "console"))
			case "warn":
				log.Warn(message, zap.String("source", "console"))
			case "debug":
				log.Debug(message, zap.String("source", "console"))
			default:
				log.Info(message, zap.String("source", "console"), zap.String("level", level))
			}
		}); err != nil {
			return err
		}
		return rt.Eval(consoleJS)
	}
}
