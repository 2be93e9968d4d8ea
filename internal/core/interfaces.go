package core

// Script is executable worker source produced by a ScriptLoader.
type Script struct {
	Name   string // resolved name used for stack traces
	Source string // compiled JavaScript
}

// ScriptLoader turns a worker designator (a path or equivalent) into
// executable source. Load runs on the worker goroutine, so failures are
// reported asynchronously as ScriptLoadError.
type ScriptLoader interface {
	Load(designator string) (*Script, error)
}

// ScriptLoaderFunc adapts a function to ScriptLoader.
type ScriptLoaderFunc func(designator string) (*Script, error)

// Load calls f(designator).
func (f ScriptLoaderFunc) Load(designator string) (*Script, error) {
	return f(designator)
}
