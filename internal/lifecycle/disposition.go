package lifecycle

// Disposition decides whether a fault caught inside a worker reaches the
// creator.
type Disposition int

const (
	// Propagate forwards the fault to the creator's error handler.
	Propagate Disposition = iota
	// Suppress marks the fault as handled inside the worker.
	Suppress
)

func (d Disposition) String() string {
	if d == Suppress {
		return "suppress"
	}
	return "propagate"
}

// DispositionOf maps the worker onerror outcome to a Disposition. Only a
// handler that was bound, returned normally, and returned exactly true
// suppresses the fault.
func DispositionOf(bound, threw, returnedTrue bool) Disposition {
	if bound && !threw && returnedTrue {
		return Suppress
	}
	return Propagate
}
