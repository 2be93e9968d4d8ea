package core

// JSRuntime abstracts the JavaScript engine (QuickJS, V8 or goja) behind a
// common interface used by the setup functions in internal/webapi, the
// worker run-loop in internal/scope and the creator loop in internal/host.
//
// A JSRuntime is single-threaded: every method except Interrupt must be
// called from the goroutine that owns the runtime.
type JSRuntime interface {
	// Eval evaluates JavaScript source and discards the result.
	Eval(js string) error

	// EvalNamed evaluates a whole script under the given file name so that
	// stack traces and error locations refer to it.
	EvalNamed(name, js string) error

	// EvalString evaluates JavaScript and returns the result as a Go string.
	EvalString(js string) (string, error)

	// EvalInt evaluates JavaScript and returns the result as a Go int.
	EvalInt(js string) (int, error)

	// RegisterFunc registers a Go function as a global JavaScript function.
	// Arguments and results are limited to string, int and float64; a
	// trailing error result makes the JS wrapper throw a TypeError.
	// QuickJS cannot marshal bool results, so predicates return 0 or 1.
	RegisterFunc(name string, fn any) error

	// SetGlobal sets a global variable on the JS context. Basic Go types
	// (string, int, float64, bool) are auto-converted to JS types.
	SetGlobal(name string, value any) error

	// RunMicrotasks pumps the microtask queue (Promise callbacks, etc.).
	RunMicrotasks()
}

// Unit is the isolated execution unit a worker runs in: one JS engine
// instance with its own heap and global object.
type Unit interface {
	JSRuntime

	// Interrupt aborts the evaluation currently in progress. It is the only
	// method that may be called from another goroutine.
	Interrupt()

	// Close releases the engine. The unit must not be used afterwards.
	Close()
}

// UnitFactory spawns a fresh execution unit configured from cfg.
type UnitFactory func(cfg EngineConfig) (Unit, error)
