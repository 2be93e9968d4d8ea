package engine

import "github.com/cryguy/jsworker/internal/core"

// MessageEvent is a payload posted by a worker.
type MessageEvent struct {
	Data any    // decoded copy: map[string]any, []any, string, float64, bool or nil
	Raw  string // JSON text as it crossed the channel
	Seq  uint64 // position in the worker→creator stream
}

// ErrorEvent describes a fault raised inside a worker, or a script that
// failed to load.
type ErrorEvent struct {
	Err *core.Error
	Seq uint64
}

// Message returns the fault's message text.
func (e ErrorEvent) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Detail
}

// Error implements error so an event can be returned or wrapped directly.
func (e ErrorEvent) Error() string {
	if e.Err == nil {
		return "worker error"
	}
	return e.Err.Error()
}

// Unwrap exposes the underlying *core.Error to errors.Is and errors.As.
func (e ErrorEvent) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}
