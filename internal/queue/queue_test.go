package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestEnqueueFailsWhenFull(t *testing.T) {
	q := New(1)
	if !q.Enqueue(Item{Data: []byte("a")}) {
		t.Fatalf("expected first enqueue to succeed")
	}
	if q.Enqueue(Item{Data: []byte("b")}) {
		t.Fatalf("expected enqueue on a full queue to fail without blocking")
	}
}

func TestRunDrainsItemsConcurrently(t *testing.T) {
	q := New(DefaultCapacity)
	for i := 0; i < 5; i++ {
		if !q.Enqueue(Item{Data: []byte{byte(i)}}) {
			t.Fatalf("expected enqueue %d to succeed", i)
		}
	}

	var mu sync.Mutex
	var seen []byte
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, q, 3, zerolog.Nop(), func(item Item) {
			mu.Lock()
			seen = append(seen, item.Data[0])
			mu.Unlock()
		})
	}()

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n == 5 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for all items to drain, got %d/5", n)
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	q := New(DefaultCapacity)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, q, 2, zerolog.Nop(), func(Item) {})
	if err == nil {
		t.Fatalf("expected Run to return the cancellation error")
	}
}
