// Package worker runs JavaScript workers: isolated script contexts that
// talk to their creator only by posting copies of values. QuickJS is the
// default execution unit; build with -tags v8 or -tags goja for the others.
package worker

import (
	"github.com/cryguy/jsworker/internal/engine"
	"github.com/cryguy/jsworker/internal/host"
)

// NewEngine creates an Engine whose workers run on the backend selected at
// build time. Options are applied after the backend default, so
// WithUnitFactory overrides it.
func NewEngine(cfg Config, loader ScriptLoader, opts ...Option) (*Engine, error) {
	return engine.New(cfg, loader, append([]Option{engine.WithUnitFactory(newUnit)}, opts...)...)
}

// NewHost creates a Host: a creator written in JavaScript, whose script
// constructs workers with new Worker(designator).
func NewHost(cfg Config, loader ScriptLoader, opts ...HostOption) (*Host, error) {
	return host.New(cfg, loader, newUnit, opts...)
}

// Backend names the execution unit compiled into this build.
func Backend() string {
	return backendName
}
