package webapi

import (
	"fmt"

	"github.com/cryguy/jsworker/internal/core"
	"github.com/cryguy/jsworker/internal/eventloop"
)

// reportErrorJS defines reportError. The value goes through the same path
// as an uncaught exception of the calling scope, so a worker's onerror
// sees it and an unhandled report reaches the creator.
const reportErrorJS = `
globalThis.reportError = function(error) {
	if (arguments.length < 1) throw new TypeError("reportError requires 1 argument");
	if (typeof globalThis.__uncaught !== 'function') throw error;
	globalThis.__uncaught(error, 'reportError');
};
`

// SetupReportError installs reportError.
func SetupReportError(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.Eval(reportErrorJS); err != nil {
		return fmt.Errorf("evaluating reportError: %w", err)
	}
	return nil
}
