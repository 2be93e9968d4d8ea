package engine

import (
	"context"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/jsworker/internal/core"
	"github.com/cryguy/jsworker/internal/eventloop"
	"github.com/cryguy/jsworker/internal/lifecycle"
	"github.com/cryguy/jsworker/internal/loader"
	"github.com/cryguy/jsworker/internal/quickjs"
)

const evalWorker = `
onmessage = function(msg) {
	var value = msg.data && msg.data.value;
	eval(msg.data && msg.data.eval);
};
`

var testScripts = loader.MapLoader{
	"EvalWorker.js":          evalWorker,
	"WorkerInvalidSyntax.js": "onmessage = function(msg) { ) };",
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.TerminateGrace = 100 * time.Millisecond

	opts = append([]Option{WithUnitFactory(quickjs.New)}, opts...)
	e, err := New(cfg, testScripts, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, e.Shutdown(ctx))
	})
	return e
}

// recorder collects callback invocations from a handle.
type recorder struct {
	messages chan MessageEvent
	errors   chan ErrorEvent
	exits    chan struct{}
}

func record(h *Handle) *recorder {
	r := &recorder{
		messages: make(chan MessageEvent, 1024),
		errors:   make(chan ErrorEvent, 1024),
		exits:    make(chan struct{}, 1),
	}
	h.OnMessage(func(ev MessageEvent) { r.messages <- ev })
	h.OnError(func(ev ErrorEvent) { r.errors <- ev })
	h.OnExit(func() { r.exits <- struct{}{} })
	return r
}

func (r *recorder) message(t *testing.T) any {
	t.Helper()
	select {
	case ev := <-r.messages:
		return ev.Data
	case ev := <-r.errors:
		t.Fatalf("unexpected error event: %v", ev)
	case <-time.After(5 * time.Second):
		t.Fatal("no message from worker")
	}
	return nil
}

func (r *recorder) errorEvent(t *testing.T) ErrorEvent {
	t.Helper()
	select {
	case ev := <-r.errors:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no error event from worker")
	}
	return ErrorEvent{}
}

func evalMessage(code string) map[string]any {
	return map[string]any{"eval": code}
}

func TestNew_RequiresLoaderAndFactory(t *testing.T) {
	_, err := New(core.DefaultConfig(), nil, WithUnitFactory(quickjs.New))
	assert.Error(t, err)

	_, err = New(core.DefaultConfig(), testScripts)
	assert.Error(t, err)
}

func TestNewWorker_ArgumentErrors(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name string
		args []any
	}{
		{"no argument", nil},
		{"two arguments", []any{"./EvalWorker.js", "extra"}},
		{"object", []any{map[string]any{"filename": "./EvalWorker.js"}}},
		{"number", []any{5}},
		{"undefined result", []any{nil}},
		{"empty", []any{""}},
		{"blank", []any{"   "}},
		{"control character", []any{"./Eval\x00Worker.js"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := e.NewWorker(tt.args...)
			assert.Nil(t, h)
			assert.ErrorIs(t, err, core.ErrArgument)
		})
	}
	assert.Equal(t, 0, e.Live())
}

func TestNewWorker_InvocationErrors(t *testing.T) {
	var nilEngine *Engine
	_, err := nilEngine.NewWorker("./EvalWorker.js")
	assert.ErrorIs(t, err, core.ErrInvocation)

	_, err = (&Engine{}).NewWorker("./EvalWorker.js")
	assert.ErrorIs(t, err, core.ErrInvocation)

	e := newTestEngine(t)
	require.NoError(t, e.Shutdown(context.Background()))
	_, err = e.NewWorker("./EvalWorker.js")
	assert.ErrorIs(t, err, core.ErrInvocation)
}

func TestPostMessage_ArityAndInvocation(t *testing.T) {
	err := (&Handle{}).PostMessage("x")
	assert.ErrorIs(t, err, core.ErrInvocation)

	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)
	defer h.Terminate()

	assert.ErrorIs(t, h.PostMessage(), core.ErrArgument)
	assert.ErrorIs(t, h.PostMessage("Message: 1", "Message2"), core.ErrArgument)
}

func TestWorker_SelfEqualsGlobal(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker")
	require.NoError(t, err)
	defer h.Terminate()
	r := record(h)

	require.NoError(t, h.PostMessage(evalMessage("postMessage(self === global);")))
	assert.Equal(t, true, r.message(t))
}

func TestWorker_RoundTripValues(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)
	defer h.Terminate()
	r := record(h)

	long := strings.Repeat("abcAbc defgDEFG 1234567890 ", 200)
	require.NoError(t, h.PostMessage(map[string]any{"value": long, "eval": "postMessage(value);"}))
	assert.Equal(t, long, r.message(t))

	obj := map[string]any{
		"str":       "A message from main",
		"number":    42,
		"obj":       map[string]any{"prop": "value", "innerObj": map[string]any{"innnerProp": 67}},
		"bool":      true,
		"nullValue": nil,
	}
	require.NoError(t, h.PostMessage(map[string]any{"value": obj, "eval": "postMessage(value);"}))
	assert.Equal(t, map[string]any{
		"str":       "A message from main",
		"number":    float64(42),
		"obj":       map[string]any{"prop": "value", "innerObj": map[string]any{"innnerProp": float64(67)}},
		"bool":      true,
		"nullValue": nil,
	}, r.message(t))
}

func TestWorker_CircularValueDropsBackEdge(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)
	defer h.Terminate()
	r := record(h)

	circular := map[string]any{"prop": "value"}
	circular["obj"] = circular
	require.NoError(t, h.PostMessage(map[string]any{"value": circular, "eval": "postMessage(value)"}))
	assert.Equal(t, map[string]any{"prop": "value"}, r.message(t))
}

func TestWorker_OpaqueValueDoesNotFail(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)
	defer h.Terminate()
	r := record(h)

	require.NoError(t, h.PostMessage(make(chan int)))
	require.NoError(t, h.PostMessage(map[string]any{"value": func() {}, "eval": "postMessage(value)"}))
	assert.Equal(t, map[string]any{}, r.message(t))
}

func TestWorker_NoMessagesAfterTerminate(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)
	r := record(h)

	h.Terminate()
	assert.NoError(t, h.PostMessage(evalMessage("postMessage('two');")))
	assert.Equal(t, lifecycle.Terminated, h.State())

	select {
	case ev := <-r.messages:
		t.Fatalf("message delivered after terminate: %v", ev.Data)
	case <-time.After(300 * time.Millisecond):
	}
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_TerminateAndCloseAreIdempotent(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)

	require.NoError(t, h.PostMessage(evalMessage("")))
	h.Close()
	h.Close()
	h.Terminate()
	h.Terminate()
	h.Terminate()
	assert.Equal(t, lifecycle.Terminated, h.State())
}

func TestWorker_ManyMessagesThenTerminate(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		require.NoError(t, h.PostMessage(map[string]any{"i": i, "data": strings.Repeat("x", 100), "num": 123456.22}))
	}
	h.Terminate()
	<-h.Done()
}

func TestWorker_KeepsRunningAfterError(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)
	defer h.Terminate()
	r := record(h)

	require.NoError(t, h.PostMessage(evalMessage("throw new Error('just an error');")))
	require.NoError(t, h.PostMessage(evalMessage("postMessage('pong');")))

	ev := r.errorEvent(t)
	assert.ErrorIs(t, ev, core.ErrRuntime)
	assert.Equal(t, "just an error", ev.Message())
	assert.Equal(t, "pong", r.message(t))
}

func TestWorker_OnErrorTrueSuppresses(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)
	defer h.Terminate()
	r := record(h)

	require.NoError(t, h.PostMessage(evalMessage("onerror = function(err) { postMessage(err); return true; }; throw 42;")))
	assert.Equal(t, float64(42), r.message(t))

	select {
	case ev := <-r.errors:
		t.Fatalf("suppressed fault reached the creator: %v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWorker_OnErrorFalsePropagates(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)
	defer h.Terminate()
	r := record(h)

	require.NoError(t, h.PostMessage(evalMessage("onerror = function(err) { return false; }; throw 42;")))
	ev := r.errorEvent(t)
	assert.Equal(t, "42", ev.Message())
	assert.Equal(t, float64(42), ev.Err.Value)
}

func TestWorker_ThrowInOnError(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)
	defer h.Terminate()

	var messages, errs atomic.Int32
	h.OnMessage(func(MessageEvent) { messages.Add(1) })
	h.OnError(func(ErrorEvent) { errs.Add(1) })

	require.NoError(t, h.PostMessage(evalMessage(
		"onerror = function() { postMessage('onerror called'); throw new Error('error'); };" +
			"throw new Error('error');")))

	assert.Eventually(t, func() bool { return errs.Load() == 2 && messages.Load() == 1 },
		5*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(2), errs.Load())
	assert.Equal(t, int32(1), messages.Load())
}

func TestWorker_CloseInsideOnClose(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)
	r := record(h)

	require.NoError(t, h.PostMessage(evalMessage("onclose = function() { postMessage('closed'); close(); }; close();")))
	assert.Equal(t, "closed", r.message(t))

	select {
	case <-r.exits:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit")
	}
	assert.Empty(t, r.messages)
	assert.Equal(t, lifecycle.Terminated, h.State())
}

func TestWorker_RepeatedCloseDoesNotCrash(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)
	r := record(h)

	require.NoError(t, h.PostMessage(evalMessage("close(); close(); close(); close();")))
	select {
	case <-r.exits:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit")
	}
}

func TestWorker_ErrorInOnCloseSkipsLaterTasks(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)
	defer h.Terminate()

	var last atomic.Value
	var onerrorCalled atomic.Bool
	h.OnError(func(ErrorEvent) { onerrorCalled.Store(true) })
	h.OnMessage(func(ev MessageEvent) {
		last.Store(ev.Data)
		_ = h.PostMessage(ev.Data.(string) + " ping")
	})

	require.NoError(t, h.PostMessage(evalMessage(
		"onmessage = function(msg) { postMessage(msg.data + ' pong'); };" +
			"onerror = function(err) { postMessage('pong'); return false; };" +
			"onclose = function() { throw new Error('error thrown from close()'); };" +
			"close();")))

	assert.Eventually(t, onerrorCalled.Load, 5*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, "pong", last.Load())
}

func TestWorker_NoInboundAfterClose(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)
	r := record(h)

	require.NoError(t, h.PostMessage(evalMessage("close(); postMessage('message after close');")))
	require.NoError(t, h.PostMessage(evalMessage("postMessage('pong');")))

	assert.Equal(t, "message after close", r.message(t))
	select {
	case <-r.exits:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit")
	}
	assert.Empty(t, r.messages)
}

func TestWorker_HostClose(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)
	r := record(h)

	require.NoError(t, h.PostMessage(evalMessage("onclose = function() { postMessage('bye'); };")))
	h.Close()
	assert.Equal(t, lifecycle.Closing, h.State())
	assert.Equal(t, "bye", r.message(t))

	select {
	case <-r.exits:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit")
	}
	<-h.Done()
	assert.Equal(t, lifecycle.Terminated, h.State())
}

func TestWorker_MissingScript(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./idonot-exist.js")
	require.NoError(t, err)
	r := record(h)

	ev := r.errorEvent(t)
	assert.ErrorIs(t, ev, core.ErrScriptLoad)
	<-h.Done()
	assert.Equal(t, float64(1), testutil.ToFloat64(e.Metrics().LoadFailures))
}

func TestWorker_InvalidSyntax(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./WorkerInvalidSyntax.js")
	require.NoError(t, err)
	r := record(h)

	ev := r.errorEvent(t)
	assert.ErrorIs(t, ev, core.ErrScriptLoad)
	assert.Equal(t, "SyntaxError", ev.Err.Name)
}

func TestWorker_UnboundHandlerDropsMessage(t *testing.T) {
	e := newTestEngine(t)
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)
	defer h.Terminate()

	first := make(chan any, 4)
	second := make(chan any, 4)
	h.OnMessage(func(ev MessageEvent) { first <- ev.Data })
	h.OnMessage(func(ev MessageEvent) { second <- ev.Data })

	require.NoError(t, h.PostMessage(evalMessage("postMessage(1);")))
	select {
	case v := <-second:
		assert.Equal(t, float64(1), v)
	case <-time.After(5 * time.Second):
		t.Fatal("no message")
	}
	assert.Empty(t, first)

	h.OnMessage(nil)
	require.NoError(t, h.PostMessage(evalMessage("postMessage(2);")))
	time.Sleep(200 * time.Millisecond)

	h.OnMessage(func(ev MessageEvent) { second <- ev.Data })
	require.NoError(t, h.PostMessage(evalMessage("postMessage(3);")))
	select {
	case v := <-second:
		assert.Equal(t, float64(3), v)
	case <-time.After(5 * time.Second):
		t.Fatal("no message")
	}
}

func TestWorker_HandleStaysAliveWhileRunning(t *testing.T) {
	e := newTestEngine(t)
	called := make(chan struct{}, 1)

	func() {
		h, err := e.NewWorker("./EvalWorker.js")
		require.NoError(t, err)
		h.OnMessage(func(MessageEvent) { called <- struct{}{} })
		require.NoError(t, h.PostMessage(evalMessage("postMessage('pong');")))
	}()
	runtime.GC()

	select {
	case <-called:
	case <-time.After(5 * time.Second):
		t.Fatal("onmessage not called")
	}
	assert.Equal(t, 1, e.Live())
}

func TestWorker_CustomSetup(t *testing.T) {
	double := func(rt core.JSRuntime, _ *eventloop.EventLoop) error {
		return rt.RegisterFunc("double", func(n int) int { return n * 2 })
	}
	e := newTestEngine(t, WithSetup(double))
	h, err := e.NewWorker("./EvalWorker.js")
	require.NoError(t, err)
	defer h.Terminate()
	r := record(h)

	require.NoError(t, h.PostMessage(evalMessage("postMessage(double(21));")))
	assert.Equal(t, float64(42), r.message(t))
}

func TestWorker_ManyWorkersManyMessages(t *testing.T) {
	workers, messages := 100, 100
	if testing.Short() {
		workers, messages = 10, 10
	}
	e := newTestEngine(t)

	var total atomic.Int64
	done := make(chan struct{})
	for i := 0; i < workers; i++ {
		h, err := e.NewWorker("./EvalWorker")
		require.NoError(t, err)

		responses := 0
		h.OnMessage(func(MessageEvent) {
			responses++
			if responses < messages {
				_ = h.PostMessage(evalMessage("postMessage('pong');"))
				return
			}
			h.Terminate()
			if total.Add(int64(responses)) == int64(workers*messages) {
				close(done)
			}
		})
		require.NoError(t, h.PostMessage(evalMessage("postMessage('pong');")))
	}

	select {
	case <-done:
	case <-time.After(60 * time.Second):
		t.Fatalf("only %d of %d responses arrived", total.Load(), workers*messages)
	}
}

func TestEngine_ShutdownStopsEverything(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < 5; i++ {
		_, err := e.NewWorker("./EvalWorker.js")
		require.NoError(t, err)
	}
	assert.Equal(t, float64(5), testutil.ToFloat64(e.Metrics().WorkersSpawned))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))
	assert.Equal(t, 0, e.Live())
	assert.Equal(t, float64(0), testutil.ToFloat64(e.Metrics().WorkersActive))
}
