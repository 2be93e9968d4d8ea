// Package quickjs provides the default execution unit, backed by
// modernc.org/quickjs.
package quickjs

import (
	"fmt"
	"sync"

	"modernc.org/quickjs"

	"github.com/cryguy/jsworker/internal/core"
)

// qjsRuntime implements core.Unit for the QuickJS engine.
type qjsRuntime struct {
	vm *quickjs.VM

	jobs    jobQueue
	hasJobs bool

	mu     sync.Mutex // guards closed against a concurrent Interrupt
	closed bool
}

var _ core.Unit = (*qjsRuntime)(nil)

// New spawns a QuickJS VM configured from cfg.
func New(cfg core.EngineConfig) (core.Unit, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}

	if cfg.MemoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(cfg.MemoryLimitMB) * 1024 * 1024)
	}

	r := &qjsRuntime{vm: vm}
	r.jobs, r.hasJobs = jobQueueOf(vm)
	return r, nil
}

// Eval evaluates JavaScript and discards the result.
func (r *qjsRuntime) Eval(js string) error {
	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return exception(err)
	}
	v.Free()
	return nil
}

// EvalNamed evaluates a whole script. The QuickJS binding has no file name
// parameter; name is attached as a sourceURL comment. Exceptions come back
// as thrown, without a name prefix, so a bare "throw 42" stays "42".
func (r *qjsRuntime) EvalNamed(name, js string) error {
	return r.Eval(js + "\n//# sourceURL=" + name)
}

// EvalString evaluates JavaScript and returns the result as a Go string.
func (r *qjsRuntime) EvalString(js string) (string, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return "", exception(err)
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprint(result), nil
}

// EvalInt evaluates JavaScript and returns the result as a Go int.
func (r *qjsRuntime) EvalInt(js string) (int, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return 0, exception(err)
	}
	switch v := result.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("expected int, got %T", result)
	}
}

// RegisterFunc registers a Go function as a global JavaScript function.
// Multi-value Go returns (T, error) are automatically unwrapped: on success
// returns T, on error throws a TypeError. This is necessary because the
// QuickJS Go wrapper returns multi-value results as JS arrays.
func (r *qjsRuntime) RegisterFunc(name string, fn any) error {
	rawName := "__raw_" + name
	if err := r.vm.RegisterFunc(rawName, fn, false); err != nil {
		return err
	}
	wrapJS := fmt.Sprintf(`(function() {
		var raw = globalThis[%q];
		globalThis[%q] = function() {
			var r = raw.apply(this, arguments);
			if (Array.isArray(r)) {
				if (r[1] !== null && r[1] !== undefined) throw new TypeError("calling %s: " + r[1]);
				return r[0];
			}
			return r;
		};
		delete globalThis[%q];
	})()`, rawName, name, name, rawName)
	return r.Eval(wrapJS)
}

// SetGlobal sets a global property on the VM's global object.
func (r *qjsRuntime) SetGlobal(name string, value any) error {
	atom, err := r.vm.NewAtom(name)
	if err != nil {
		return fmt.Errorf("creating atom %q: %w", name, err)
	}
	glob := r.vm.GlobalObject()
	defer glob.Free()
	return glob.SetProperty(atom, value)
}

// RunMicrotasks pumps the QuickJS microtask queue.
func (r *qjsRuntime) RunMicrotasks() {
	if r.hasJobs {
		r.jobs.drain()
	}
}

// Interrupt aborts the running evaluation. Safe from any goroutine.
func (r *qjsRuntime) Interrupt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.vm.Interrupt()
	}
}

// Close releases the VM. An interrupted VM may panic on teardown; that
// panic is swallowed since the VM is gone either way.
func (r *qjsRuntime) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	defer func() { _ = recover() }()
	r.vm.Close()
}

func exception(err error) error {
	return core.ParseException(err.Error())
}
