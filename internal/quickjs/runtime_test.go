package quickjs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/jsworker/internal/core"
)

func newTestUnit(t *testing.T) core.Unit {
	t.Helper()
	u, err := New(core.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(u.Close)
	return u
}

func TestUnit_Eval(t *testing.T) {
	u := newTestUnit(t)

	require.NoError(t, u.Eval("var x = 40 + 2;"))
	n, err := u.EvalInt("x")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	s, err := u.EvalString("'a' + 'b'")
	require.NoError(t, err)
	assert.Equal(t, "ab", s)
}

func TestUnit_ThrownErrorIsException(t *testing.T) {
	u := newTestUnit(t)

	err := u.Eval("throw new TypeError('bad thing')")
	require.Error(t, err)

	var ex *core.Exception
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, "TypeError", ex.Name)
	assert.Contains(t, ex.Message, "bad thing")
}

func TestUnit_EvalNamedKeepsThrownText(t *testing.T) {
	u := newTestUnit(t)

	err := u.EvalNamed("w.js", "throw 42")
	var ex *core.Exception
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, "", ex.Name)
	assert.Equal(t, "42", ex.Message)
	assert.Equal(t, "42", err.Error())

	err = u.EvalNamed("w.js", "throw new RangeError('too far')")
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, "RangeError", ex.Name)
	assert.Equal(t, "too far", ex.Message)
}

func TestUnit_RegisterFunc(t *testing.T) {
	u := newTestUnit(t)

	require.NoError(t, u.RegisterFunc("double", func(n int) int { return n * 2 }))
	n, err := u.EvalInt("double(21)")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	require.NoError(t, u.RegisterFunc("fails", func(s string) (string, error) {
		return "", errors.New("nope: " + s)
	}))
	s, err := u.EvalString("(function(){ try { fails('x'); return 'no'; } catch (e) { return e.message; } })()")
	require.NoError(t, err)
	assert.Contains(t, s, "nope: x")
}

func TestUnit_SetGlobal(t *testing.T) {
	u := newTestUnit(t)

	require.NoError(t, u.SetGlobal("greeting", "hello"))
	s, err := u.EvalString("greeting + ' world'")
	require.NoError(t, err)
	assert.Equal(t, "hello world", s)
}

func TestUnit_RunMicrotasks(t *testing.T) {
	u := newTestUnit(t)

	require.NoError(t, u.Eval("var done = 0; Promise.resolve().then(function() { done = 1; });"))
	u.RunMicrotasks()
	n, err := u.EvalInt("done")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJobQueue_DrainsChainedJobs(t *testing.T) {
	u := newTestUnit(t)
	r := u.(*qjsRuntime)
	require.True(t, r.hasJobs)

	require.NoError(t, u.Eval(`
		var steps = 0;
		Promise.resolve()
			.then(function() { steps++; })
			.then(function() { steps++; })
			.then(function() { steps++; });`))
	assert.GreaterOrEqual(t, r.jobs.drain(), 3)
	assert.Equal(t, 0, r.jobs.drain())

	n, err := u.EvalInt("steps")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUnit_InterruptStopsLoop(t *testing.T) {
	u, err := New(core.DefaultConfig())
	require.NoError(t, err)

	timer := time.AfterFunc(50*time.Millisecond, u.Interrupt)
	defer timer.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { _ = recover() }()
		_ = u.Eval("for (;;) {}")
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("interrupt did not stop the evaluation")
	}
	u.Close()
	u.Interrupt() // no-op after Close
}
