// Package queue implements the bounded inbound-message FIFO and its fixed
// worker pool (§4.2): a buffered channel stands in for the C original's
// hand-rolled circular buffer plus condition variable, and
// golang.org/x/sync/errgroup coordinates the worker goroutines' lifecycle
// the way the teacher's SIPServer.Run coordinates its listener and
// transaction goroutines.
package queue

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultCapacity matches original_source/sip_server.h's QUEUE_CAPACITY.
const DefaultCapacity = 10

// DefaultWorkers matches original_source/sip_server.h's MAX_THREADS.
const DefaultWorkers = 5

// Item is one datagram queued for processing.
type Item struct {
	Data       []byte
	SourceIP   string
	SourcePort int
}

// Queue is a bounded FIFO with fail-fast enqueue and blocking dequeue,
// per §4.2 and §5's suspension-point rules.
type Queue struct {
	ch chan Item
}

// New builds a queue with the given capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{ch: make(chan Item, capacity)}
}

// Enqueue returns false without blocking if the queue is full.
func (q *Queue) Enqueue(item Item) bool {
	select {
	case q.ch <- item:
		return true
	default:
		return false
	}
}

// Run starts n symmetric, stateless workers draining the queue, each
// calling handle for every dequeued item, until ctx is cancelled. Mirrors
// the teacher's errgroup.WithContext pattern for goroutine lifecycle.
func Run(ctx context.Context, q *Queue, n int, log zerolog.Logger, handle func(Item)) error {
	if n <= 0 {
		n = DefaultWorkers
	}
	log.Debug().Int("workers", n).Msg("starting worker pool")
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gCtx.Done():
					return gCtx.Err()
				case item, ok := <-q.ch:
					if !ok {
						return nil
					}
					handle(item)
				}
			}
		})
	}
	return g.Wait()
}
