// Package webapi installs the JavaScript globals shared by worker scopes
// and the host: the clone codec, console, timers and small utilities.
package webapi

import (
	"go.uber.org/zap"

	"github.com/cryguy/jsworker/internal/core"
	"github.com/cryguy/jsworker/internal/eventloop"
)

// SetupFunc configures one aspect of a fresh runtime.
type SetupFunc func(rt core.JSRuntime, el *eventloop.EventLoop) error

// Standard returns the setup functions every runtime gets, in order.
func Standard(log *zap.Logger) []SetupFunc {
	return []SetupFunc{
		SetupClone,
		SetupGlobals,
		SetupTimers,
		SetupScheduler,
		SetupReportError,
		SetupConsole(log),
	}
}

// Install runs fns in order and stops at the first error.
func Install(rt core.JSRuntime, el *eventloop.EventLoop, fns ...SetupFunc) error {
	for _, fn := range fns {
		if err := fn(rt, el); err != nil {
			return err
		}
	}
	return nil
}
