// Package gojaengine provides a pure-Go execution unit backed by
// github.com/dop251/goja.
package gojaengine

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/cryguy/jsworker/internal/core"
)

// gojaRuntime implements core.Unit on a goja.Runtime. goja has no heap
// limit, so EngineConfig.MemoryLimitMB is not enforced by this backend.
type gojaRuntime struct {
	vm *goja.Runtime
}

var _ core.Unit = (*gojaRuntime)(nil)

// New spawns a goja runtime.
func New(_ core.EngineConfig) (core.Unit, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	return &gojaRuntime{vm: vm}, nil
}

// Eval evaluates JavaScript and discards the result.
func (r *gojaRuntime) Eval(js string) error {
	_, err := r.vm.RunString(js)
	return r.exception(err)
}

// EvalNamed evaluates a whole script under the given file name.
func (r *gojaRuntime) EvalNamed(name, js string) error {
	_, err := r.vm.RunScript(name, js)
	return r.exception(err)
}

// EvalString evaluates JavaScript and returns the result as a Go string.
func (r *gojaRuntime) EvalString(js string) (string, error) {
	v, err := r.vm.RunString(js)
	if err != nil {
		return "", r.exception(err)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", nil
	}
	return v.String(), nil
}

// EvalInt evaluates JavaScript and returns the result as a Go int.
func (r *gojaRuntime) EvalInt(js string) (int, error) {
	v, err := r.vm.RunString(js)
	if err != nil {
		return 0, r.exception(err)
	}
	if v == nil {
		return 0, nil
	}
	return int(v.ToInteger()), nil
}

// RegisterFunc exposes fn as a global. goja converts arguments itself and
// throws when a trailing error result is non-nil.
func (r *gojaRuntime) RegisterFunc(name string, fn any) error {
	return r.vm.Set(name, fn)
}

// SetGlobal sets a global variable on the runtime.
func (r *gojaRuntime) SetGlobal(name string, value any) error {
	return r.vm.Set(name, value)
}

// RunMicrotasks is a no-op: goja drains its job queue at the end of every
// top-level run.
func (r *gojaRuntime) RunMicrotasks() {}

// Interrupt aborts the running evaluation. Safe from any goroutine.
func (r *gojaRuntime) Interrupt() {
	r.vm.Interrupt("terminated")
}

// Close drops the runtime; goja is garbage collected.
func (r *gojaRuntime) Close() {
	r.vm.ClearInterrupt()
}

func (r *gojaRuntime) exception(err error) error {
	if err == nil {
		return nil
	}
	var jsErr *goja.Exception
	if !errors.As(err, &jsErr) {
		return err
	}

	ex := &core.Exception{Stack: jsErr.String()}
	val := jsErr.Value()
	obj, ok := val.(*goja.Object)
	if !ok {
		ex.Message = val.String()
		return ex
	}
	if name := obj.Get("name"); name != nil {
		ex.Name = name.String()
	}
	if msg := obj.Get("message"); msg != nil {
		ex.Message = msg.String()
	} else {
		ex.Message = fmt.Sprint(obj.Export())
	}
	if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
		ex.Stack = stack.String()
	}
	return ex
}
