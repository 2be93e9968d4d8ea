// Package channel carries cloned payloads between a creator and a worker.
// Each direction is an independent FIFO; nothing else is shared between the
// two threads.
package channel

import (
	"context"

	"github.com/cryguy/jsworker/internal/core"
)

// Direction selects one of the two queues of a Channel.
type Direction int

const (
	ToWorker  Direction = iota // creator → worker
	ToCreator                  // worker → creator
)

func (d Direction) String() string {
	if d == ToWorker {
		return "to_worker"
	}
	return "to_creator"
}

// Kind tags the envelope.
type Kind int

const (
	Data  Kind = iota // Payload holds a structured payload as JSON text
	Fault             // Fault describes an error raised inside the worker
	Close             // host-requested graceful close (ToWorker only)
	Exit              // the worker has stopped (ToCreator only, always last)
)

func (k Kind) String() string {
	switch k {
	case Data:
		return "data"
	case Fault:
		return "fault"
	case Close:
		return "close"
	case Exit:
		return "exit"
	default:
		return "unknown"
	}
}

// Message is the envelope queued in one direction. Seq is assigned by the
// channel and is strictly increasing per direction.
type Message struct {
	Seq     uint64
	Kind    Kind
	Payload string
	Fault   *core.Error
}

// Channel is a pair of queues, one per direction.
type Channel struct {
	queues [2]*Queue[Message]
}

// New returns an open channel.
func New() *Channel {
	return &Channel{queues: [2]*Queue[Message]{NewQueue[Message](), NewQueue[Message]()}}
}

// Send stamps m with the next sequence number of d and enqueues it. It
// reports false when d is closed; the message is dropped silently then.
func (c *Channel) Send(d Direction, m Message) bool {
	return c.queues[d].Stamp(func(seq uint64) Message {
		m.Seq = seq
		return m
	})
}

// Receive blocks for the next message of d.
func (c *Channel) Receive(ctx context.Context, d Direction) (Message, error) {
	return c.queues[d].Wait(ctx)
}

// TryReceive returns the next message of d without blocking.
func (c *Channel) TryReceive(d Direction) (Message, bool) {
	return c.queues[d].Pop()
}

// Ready fires when d may have messages to receive.
func (c *Channel) Ready(d Direction) <-chan struct{} {
	return c.queues[d].Ready()
}

// Close closes d, discarding undelivered messages, and returns how many
// were discarded.
func (c *Channel) Close(d Direction) int {
	return c.queues[d].Close()
}

// Closed reports whether d is closed.
func (c *Channel) Closed(d Direction) bool {
	return c.queues[d].Closed()
}

// Len returns the number of messages waiting in d.
func (c *Channel) Len(d Direction) int {
	return c.queues[d].Len()
}
