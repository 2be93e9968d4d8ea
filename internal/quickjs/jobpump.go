package quickjs

import (
	"reflect"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// jobQueue is the C-level handle to a VM's pending job list. The
// modernc.org/quickjs wrapper never runs JS_ExecutePendingJob, so promise
// reactions stay queued unless a unit drains them here.
type jobQueue struct {
	rt  uintptr
	tls *libc.TLS
}

// drain runs queued jobs until none are left. A job that throws leaves
// its exception on the context and does not stop the rest.
func (q jobQueue) drain() (ran int) {
	for lib.XJS_ExecutePendingJob(q.tls, q.rt, 0) != 0 {
		ran++
	}
	return ran
}

// jobQueueOf reads the unexported runtime handle out of vm.
//
// Layout relied on (modernc.org/quickjs v0.17):
//
//	type VM struct {
//	    ...
//	    runtime *runtime
//	}
//
//	type runtime struct {
//	    cRuntime uintptr
//	    tls      *libc.TLS
//	}
//
// ok is false when the layout does not match; the unit then runs without
// microtasks rather than crashing.
func jobQueueOf(vm *quickjs.VM) (q jobQueue, ok bool) {
	defer func() {
		if recover() != nil {
			q, ok = jobQueue{}, false
		}
	}()

	field := reflect.ValueOf(vm).Elem().FieldByName("runtime")
	if !field.IsValid() || field.Kind() != reflect.Pointer || field.IsNil() {
		return jobQueue{}, false
	}
	inner := reflect.NewAt(field.Type().Elem(), unsafe.Pointer(field.Pointer())).Elem()

	handle := inner.FieldByName("cRuntime")
	tls := inner.FieldByName("tls")
	if !handle.IsValid() || !tls.IsValid() || tls.IsNil() {
		return jobQueue{}, false
	}
	q = jobQueue{
		rt:  uintptr(handle.Uint()),
		tls: (*libc.TLS)(unsafe.Pointer(tls.Pointer())),
	}
	return q, q.rt != 0
}
