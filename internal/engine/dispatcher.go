package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cryguy/jsworker/internal/channel"
)

// Dispatcher runs creator-side callbacks. Implementations execute tasks
// one at a time, in the order they were dispatched, on a single thread.
type Dispatcher interface {
	Dispatch(task func())
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(task func())

// Dispatch calls f(task).
func (f DispatcherFunc) Dispatch(task func()) {
	f(task)
}

// Loop is the default Dispatcher: a goroutine draining an unbounded task
// queue. A panicking task is logged and the loop carries on.
type Loop struct {
	tasks *channel.Queue[func()]
	log   *zap.Logger
	done  chan struct{}
}

var _ Dispatcher = (*Loop)(nil)

// NewLoop starts a dispatch loop.
func NewLoop(log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Loop{
		tasks: channel.NewQueue[func()](),
		log:   log,
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

// Dispatch queues task. Tasks dispatched after Close are dropped.
func (l *Loop) Dispatch(task func()) {
	l.tasks.Push(task)
}

// Close stops the loop after the task in progress, dropping queued tasks.
func (l *Loop) Close() {
	l.tasks.Close()
}

// Done is closed once the loop goroutine has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		task, err := l.tasks.Wait(context.Background())
		if err != nil {
			return
		}
		l.safe(task)
	}
}

func (l *Loop) safe(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("creator callback panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	task()
}
