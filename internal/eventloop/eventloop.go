package eventloop

import (
	"fmt"
	"sync"
	"time"

	"github.com/cryguy/jsworker/internal/core"
)

// timerEntry represents a pending setTimeout or setInterval callback.
// The callback itself stays on the JS side, keyed by id. Go only tracks
// scheduling metadata.
type timerEntry struct {
	deadline time.Time
	interval time.Duration // 0 for setTimeout, >0 for setInterval
	id       int
	seq      uint64 // registration order, breaks deadline ties
}

// EventLoop manages Go-backed timers for setTimeout/setInterval. It never
// sleeps on its own: the owner asks for NextDeadline, waits however it
// likes, then calls FireNext on the runtime's goroutine.
type EventLoop struct {
	mu     sync.Mutex
	timers map[int]*timerEntry
	nextID int
	seq    uint64
}

// New creates a new EventLoop.
func New() *EventLoop {
	return &EventLoop{
		timers: make(map[int]*timerEntry),
	}
}

// RegisterTimer creates a timer entry and returns its ID.
func (el *EventLoop) RegisterTimer(delay time.Duration, isInterval bool) int {
	el.mu.Lock()
	if delay < 0 {
		delay = 0
	}
	el.nextID++
	el.seq++
	id := el.nextID
	entry := &timerEntry{
		deadline: time.Now().Add(delay),
		id:       id,
		seq:      el.seq,
	}
	if isInterval {
		if delay < 10*time.Millisecond {
			delay = 10 * time.Millisecond // minimum interval
		}
		entry.interval = delay
	}
	el.timers[id] = entry
	el.mu.Unlock()
	return id
}

// ClearTimer cancels a timer by ID.
func (el *EventLoop) ClearTimer(id int) {
	el.mu.Lock()
	defer el.mu.Unlock()
	delete(el.timers, id)
}

// NextDeadline returns the earliest pending deadline.
func (el *EventLoop) NextDeadline() (time.Time, bool) {
	el.mu.Lock()
	defer el.mu.Unlock()
	next := el.earliest()
	if next == nil {
		return time.Time{}, false
	}
	return next.deadline, true
}

// FireNext fires the earliest timer if its deadline is not after now and
// pumps microtasks. It reports whether a timer fired, letting callers stop
// between callbacks.
func (el *EventLoop) FireNext(rt core.JSRuntime, now time.Time) bool {
	el.mu.Lock()
	next := el.earliest()
	if next == nil || next.deadline.After(now) {
		el.mu.Unlock()
		return false
	}
	timerID := next.id
	if next.interval > 0 {
		next.deadline = now.Add(next.interval)
	} else {
		delete(el.timers, next.id)
	}
	el.mu.Unlock()

	el.fireTimer(rt, timerID)
	rt.RunMicrotasks()
	return true
}

// HasPending returns true if there are any active timers.
func (el *EventLoop) HasPending() bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.timers) > 0
}

// Reset drops every timer. Owners call it when their runtime goes away.
func (el *EventLoop) Reset() {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.timers = make(map[int]*timerEntry)
	el.nextID = 0
}

// earliest must be called with el.mu held.
func (el *EventLoop) earliest() *timerEntry {
	var next *timerEntry
	for _, t := range el.timers {
		if next == nil || t.deadline.Before(next.deadline) ||
			(t.deadline.Equal(next.deadline) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

// fireTimer fires a timer callback through the JS-side dispatcher installed
// by webapi.SetupTimers.
func (el *EventLoop) fireTimer(rt core.JSRuntime, id int) {
	_ = rt.Eval(fmt.Sprintf(`globalThis.__timerFire(%d)`, id))
}
