package webapi

import (
	"fmt"

	"github.com/cryguy/jsworker/internal/core"
	"github.com/cryguy/jsworker/internal/eventloop"
)

// schedulerJS defines globalThis.scheduler on top of setTimeout.
const schedulerJS = `
globalThis.scheduler = {
	wait: function(ms) {
		return new Promise(function(resolve) {
			setTimeout(resolve, ms || 0);
		});
	},
	postTask: function(callback, options) {
		if (typeof callback !== 'function') {
			return Promise.reject(new TypeError("scheduler.postTask requires a function"));
		}
		var delay = (options && options.delay) || 0;
		return new Promise(function(resolve, reject) {
			setTimeout(function() {
				try { resolve(callback()); }
				catch (e) { reject(e); }
			}, delay);
		});
	},
	yield: function() {
		return new Promise(function(resolve) { setTimeout(resolve, 0); });
	}
};
`

// SetupScheduler registers the scheduler global. It needs SetupTimers.
func SetupScheduler(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.Eval(schedulerJS); err != nil {
		return fmt.Errorf("evaluating scheduler: %w", err)
	}
	return nil
}
