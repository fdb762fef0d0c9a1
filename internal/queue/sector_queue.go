// Package queue provides the bounded FIFO between the sector producer and the carving loop.
package queue

import (
	"sync"

	"github.com/deploymenttheory/go-carver/internal/types"
)

// SectorQueue is a bounded FIFO of sector packages.
//
// Push blocks while the queue holds capacity entries and resumes as soon as
// the consumer frees a slot. Close wakes the consumer and every blocked
// producer; pushes after Close are dropped.
type SectorQueue struct {
	items     chan *types.SectorPackage
	done      chan struct{}
	closeOnce sync.Once
}

// NewSectorQueue creates a queue. A non-positive capacity selects the default.
func NewSectorQueue(capacity int) *SectorQueue {
	if capacity <= 0 {
		capacity = types.DefaultQueueCapacity
	}
	return &SectorQueue{
		items: make(chan *types.SectorPackage, capacity),
		done:  make(chan struct{}),
	}
}

// Push appends a package, blocking while the queue is full.
// It returns false if the queue was closed before the package was accepted.
func (q *SectorQueue) Push(pkg *types.SectorPackage) bool {
	select {
	case <-q.done:
		return false
	default:
	}

	select {
	case q.items <- pkg:
		return true
	case <-q.done:
		return false
	}
}

// WaitPop blocks until a package is available. After Close it keeps returning
// queued packages and reports false once the queue is empty.
func (q *SectorQueue) WaitPop() (*types.SectorPackage, bool) {
	select {
	case pkg := <-q.items:
		return pkg, true
	case <-q.done:
	}
	return q.TryPop()
}

// TryPop returns the next package without blocking
func (q *SectorQueue) TryPop() (*types.SectorPackage, bool) {
	select {
	case pkg := <-q.items:
		return pkg, true
	default:
		return nil, false
	}
}

// Drain discards every queued package and returns how many were dropped
func (q *SectorQueue) Drain() int {
	dropped := 0
	for {
		if _, ok := q.TryPop(); !ok {
			return dropped
		}
		dropped++
	}
}

// Close terminates the queue. It is safe to call more than once.
func (q *SectorQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Closed reports whether Close has been called
func (q *SectorQueue) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Len returns the number of queued packages
func (q *SectorQueue) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity
func (q *SectorQueue) Cap() int {
	return cap(q.items)
}
