//go:build v8

// Package v8engine provides an execution unit backed by V8 through
// github.com/tommie/v8go. Build with -tags v8.
package v8engine

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/bytedance/sonic"
	v8 "github.com/tommie/v8go"

	"github.com/cryguy/jsworker/internal/core"
)

// v8Runtime implements core.Unit for the V8 engine.
type v8Runtime struct {
	iso *v8.Isolate
	ctx *v8.Context

	mu     sync.Mutex
	closed bool
}

var _ core.Unit = (*v8Runtime)(nil)

// New spawns a V8 isolate and context configured from cfg.
func New(cfg core.EngineConfig) (core.Unit, error) {
	var iso *v8.Isolate
	if cfg.MemoryLimitMB > 0 {
		heapSize := uint64(cfg.MemoryLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heapSize/2, heapSize))
	} else {
		iso = v8.NewIsolate()
	}
	return &v8Runtime{iso: iso, ctx: v8.NewContext(iso)}, nil
}

// Eval evaluates JavaScript and discards the result.
func (r *v8Runtime) Eval(js string) error {
	_, err := r.ctx.RunScript(js, "eval.js")
	return exception(err)
}

// EvalNamed evaluates a whole script under the given origin name.
func (r *v8Runtime) EvalNamed(name, js string) error {
	_, err := r.ctx.RunScript(js, name)
	return exception(err)
}

// EvalString evaluates JavaScript and returns the result as a Go string.
func (r *v8Runtime) EvalString(js string) (string, error) {
	val, err := r.ctx.RunScript(js, "eval_string.js")
	if err != nil {
		return "", exception(err)
	}
	if val == nil {
		return "", nil
	}
	return val.String(), nil
}

// EvalInt evaluates JavaScript and returns the result as a Go int.
func (r *v8Runtime) EvalInt(js string) (int, error) {
	val, err := r.ctx.RunScript(js, "eval_int.js")
	if err != nil {
		return 0, exception(err)
	}
	if val == nil {
		return 0, nil
	}
	return int(val.Integer()), nil
}

// RegisterFunc registers a Go function as a global JavaScript function.
// Uses reflection to inspect the Go function's signature and creates a
// V8 FunctionTemplate that marshals arguments and return values.
//
// Supported Go function signatures:
//   - func(args...): no return, JS function returns undefined
//   - func(args...) T: single return, JS function returns T
//   - func(args...) (T, error): on success returns T, on error throws TypeError
//
// Supported argument and return types: string, int, float64, bool
func (r *v8Runtime) RegisterFunc(name string, fn any) error {
	fnVal := reflect.ValueOf(fn)
	fnType := fnVal.Type()

	if fnType.Kind() != reflect.Func {
		return fmt.Errorf("RegisterFunc: expected function, got %T", fn)
	}

	tmpl := v8.NewFunctionTemplate(r.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		args := info.Args()

		if len(args) < fnType.NumIn() {
			r.throwType(fmt.Sprintf("%s requires at least %d argument(s), got %d", name, fnType.NumIn(), len(args)))
			return nil
		}

		goArgs := make([]reflect.Value, fnType.NumIn())
		for i := 0; i < fnType.NumIn(); i++ {
			goArgs[i] = jsToGoArg(args[i], fnType.In(i))
		}

		results := fnVal.Call(goArgs)

		switch fnType.NumOut() {
		case 0:
			return nil
		case 1:
			return goToJSValue(r.iso, results[0])
		case 2:
			if errVal := results[1]; !errVal.IsNil() {
				r.throwType(fmt.Sprintf("calling %s: %s", name, errVal.Interface().(error).Error()))
				return nil
			}
			return goToJSValue(r.iso, results[0])
		default:
			return nil
		}
	})

	return r.ctx.Global().Set(name, tmpl.GetFunction(r.ctx))
}

// SetGlobal sets a global variable on the JS context.
func (r *v8Runtime) SetGlobal(name string, value any) error {
	jsVal, err := goAnyToJSValue(r.iso, r.ctx, value)
	if err != nil {
		return fmt.Errorf("converting value for %q: %w", name, err)
	}
	return r.ctx.Global().Set(name, jsVal)
}

// RunMicrotasks pumps the V8 microtask queue.
func (r *v8Runtime) RunMicrotasks() {
	r.ctx.PerformMicrotaskCheckpoint()
}

// Interrupt terminates the running script. TerminateExecution is the one
// isolate call V8 allows from another thread.
func (r *v8Runtime) Interrupt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.iso.TerminateExecution()
	}
}

// Close disposes the context and isolate.
func (r *v8Runtime) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.ctx.Close()
	r.iso.Dispose()
}

func (r *v8Runtime) throwType(msg string) {
	// The callback has no direct TypeError constructor; build one in JS.
	quoted, _ := sonic.ConfigStd.MarshalToString(msg)
	errVal, err := r.ctx.RunScript("new TypeError("+quoted+")", "throw.js")
	if err != nil {
		errVal, _ = v8.NewValue(r.iso, msg)
	}
	r.iso.ThrowException(errVal)
}

func exception(err error) error {
	if err == nil {
		return nil
	}
	var jsErr *v8.JSError
	if !errors.As(err, &jsErr) {
		return err
	}
	ex := core.ParseException(jsErr.Message)
	if jsErr.StackTrace != "" {
		ex.Stack = jsErr.StackTrace
	}
	return ex
}

// jsToGoArg converts a V8 value to a Go reflect.Value of the expected type.
func jsToGoArg(val *v8.Value, targetType reflect.Type) reflect.Value {
	switch targetType.Kind() {
	case reflect.String:
		return reflect.ValueOf(val.String())
	case reflect.Int:
		return reflect.ValueOf(int(val.Integer()))
	case reflect.Int64:
		return reflect.ValueOf(val.Integer())
	case reflect.Float64:
		return reflect.ValueOf(val.Number())
	case reflect.Bool:
		return reflect.ValueOf(val.Boolean())
	default:
		return reflect.Zero(targetType)
	}
}

// goToJSValue converts a Go reflect.Value to a V8 value.
func goToJSValue(iso *v8.Isolate, val reflect.Value) *v8.Value {
	if !val.IsValid() {
		return nil
	}
	var v *v8.Value
	switch val.Kind() {
	case reflect.String:
		v, _ = v8.NewValue(iso, val.String())
	case reflect.Int, reflect.Int64, reflect.Int32:
		v, _ = v8.NewValue(iso, int32(val.Int()))
	case reflect.Float64, reflect.Float32:
		v, _ = v8.NewValue(iso, val.Float())
	case reflect.Bool:
		v, _ = v8.NewValue(iso, val.Bool())
	}
	return v
}

// goAnyToJSValue converts a Go any value to a V8 value. Composite values
// cross as JSON and are parsed inside the context.
func goAnyToJSValue(iso *v8.Isolate, ctx *v8.Context, value any) (*v8.Value, error) {
	switch v := value.(type) {
	case nil:
		return v8.Undefined(iso), nil
	case string:
		return v8.NewValue(iso, v)
	case int:
		return v8.NewValue(iso, int32(v))
	case int64:
		return v8.NewValue(iso, v)
	case float64:
		return v8.NewValue(iso, v)
	case bool:
		return v8.NewValue(iso, v)
	case *v8.Value:
		return v, nil
	default:
		data, err := sonic.ConfigStd.MarshalToString(value)
		if err != nil {
			return nil, fmt.Errorf("marshaling value: %w", err)
		}
		quoted, err := sonic.ConfigStd.MarshalToString(data)
		if err != nil {
			return nil, fmt.Errorf("quoting value: %w", err)
		}
		return ctx.RunScript("JSON.parse("+quoted+")", "set_global.js")
	}
}
