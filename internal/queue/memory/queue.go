// Package memory provides the in-process queue feeding the crawl run worker.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
)

// ErrClosed is returned once the queue has been closed.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations. Closing
// it drops pending requests.
type Queue struct {
	ch        chan crawler.RunRequest
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan crawler.RunRequest, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a request into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, req crawler.RunRequest) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrClosed
	case q.ch <- req:
		return nil
	}
}

// TryEnqueue pushes a request without blocking and reports whether it fit.
func (q *Queue) TryEnqueue(req crawler.RunRequest) (bool, error) {
	select {
	case <-q.done:
		return false, ErrClosed
	default:
	}
	select {
	case q.ch <- req:
		return true, nil
	default:
		return false, nil
	}
}

// Dequeue pops the next request, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (crawler.RunRequest, error) {
	select {
	case <-q.done:
		return crawler.RunRequest{}, ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return crawler.RunRequest{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return crawler.RunRequest{}, ErrClosed
	case req := <-q.ch:
		return req, nil
	}
}

// Len reports the number of pending requests.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue for shutdown. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
