package core

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := Argument("Worker", "expected 1 argument, got %d", 0)

	assert.ErrorIs(t, err, ErrArgument)
	assert.NotErrorIs(t, err, ErrInvocation)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), ErrArgument)
	assert.ErrorIs(t, err, &Error{Kind: KindArgument, Op: "Worker"})
	assert.NotErrorIs(t, err, &Error{Kind: KindArgument, Op: "postMessage"})
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "[argument] Worker: expected 1 argument, got 0",
		Argument("Worker", "expected 1 argument, got %d", 0).Error())

	e := &Error{Kind: KindRuntime, Name: "TypeError", Detail: "x is not a function", Filename: "w.js", Line: 3, Column: 7}
	assert.Equal(t, "[runtime]: TypeError: x is not a function (w.js:3:7)", e.Error())
}

func TestError_UnwrapCause(t *testing.T) {
	err := ScriptLoad("missing.js", fs.ErrNotExist)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.ErrorIs(t, err, ErrScriptLoad)
	assert.Contains(t, err.Error(), "missing.js")

	var e *Error
	assert.True(t, errors.As(fmt.Errorf("outer: %w", err), &e))
	assert.Equal(t, KindScriptLoad, e.Kind)
}

func TestParseException(t *testing.T) {
	ex := ParseException("TypeError: cannot read property 'x' of undefined\n    at <anonymous> (w.js:2)\n")
	assert.Equal(t, "TypeError", ex.Name)
	assert.Equal(t, "cannot read property 'x' of undefined", ex.Message)
	assert.Equal(t, "    at <anonymous> (w.js:2)", ex.Stack)

	ex = ParseException("something odd: happened")
	assert.Equal(t, "", ex.Name)
	assert.Equal(t, "something odd: happened", ex.Message)
}

func TestAsException(t *testing.T) {
	orig := &Exception{Name: "RangeError", Message: "too deep"}
	assert.Same(t, orig, AsException(fmt.Errorf("eval: %w", orig)))
	assert.Nil(t, AsException(nil))
	assert.Equal(t, "SyntaxError", AsException(errors.New("SyntaxError: unexpected token")).Name)
}

func TestScriptLoaderFunc(t *testing.T) {
	l := ScriptLoaderFunc(func(d string) (*Script, error) { return &Script{Name: d}, nil })
	s, err := l.Load("x.js")
	assert.NoError(t, err)
	assert.Equal(t, "x.js", s.Name)
}

func TestDefaultConfigMatchesEnvDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	t.Setenv("WORKER_MEMORY_LIMIT_MB", "64")
	cfg, err = LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, 64, cfg.MemoryLimitMB)
}
