package disk

import (
	"fmt"

	"github.com/crio-db/crio/internal/common"
	"github.com/crio-db/crio/internal/pageid"
)

// requestKind distinguishes the two shapes of work the scheduler's worker
// can perform.
type requestKind int

const (
	requestRead requestKind = iota
	requestWrite
)

// request is one unit of scheduled disk I/O. done carries the result back
// to the caller that enqueued it.
type request struct {
	kind requestKind
	id   pageid.PageID
	buf  []byte
	done chan error
}

// Scheduler serializes all page I/O onto a single worker goroutine, the way
// a real storage engine funnels every request through one queue so that
// disk access is predictable and request ordering is preserved per page.
// Requests are served strictly FIFO; callers block on their own done
// channel, not on each other.
type Scheduler struct {
	mgr     *Manager
	queue   chan *request
	closing chan struct{}
	closed  chan struct{}
}

// defaultQueueDepth bounds how many in-flight requests the scheduler will
// buffer before Schedule* calls start returning common.ErrQueueFull.
const defaultQueueDepth = 1024

// NewScheduler starts the worker goroutine and returns a Scheduler bound to
// mgr.
func NewScheduler(mgr *Manager) *Scheduler {
	s := &Scheduler{
		mgr:     mgr,
		queue:   make(chan *request, defaultQueueDepth),
		closing: make(chan struct{}),
		closed:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Scheduler) run() {
	defer close(s.closed)
	for {
		select {
		case req := <-s.queue:
			s.serve(req)
		case <-s.closing:
			// Drain whatever is already queued before exiting, so callers
			// waiting on done channels always get an answer.
			for {
				select {
				case req := <-s.queue:
					s.serve(req)
				default:
					return
				}
			}
		}
	}
}

func (s *Scheduler) serve(req *request) {
	switch req.kind {
	case requestRead:
		req.done <- s.mgr.ReadPage(req.id, req.buf)
	case requestWrite:
		req.done <- s.mgr.WritePage(req.id, req.buf)
	default:
		req.done <- fmt.Errorf("disk: unknown request kind %d", req.kind)
	}
}

// ScheduleRead enqueues a read of id into dst and blocks until it completes.
func (s *Scheduler) ScheduleRead(id pageid.PageID, dst []byte) error {
	return s.submit(&request{kind: requestRead, id: id, buf: dst, done: make(chan error, 1)})
}

// ScheduleWrite enqueues a write of src to id and blocks until it completes.
func (s *Scheduler) ScheduleWrite(id pageid.PageID, src []byte) error {
	return s.submit(&request{kind: requestWrite, id: id, buf: src, done: make(chan error, 1)})
}

func (s *Scheduler) submit(req *request) error {
	select {
	case <-s.closing:
		return common.ErrClosed
	default:
	}

	select {
	case s.queue <- req:
	default:
		return common.ErrQueueFull
	}

	return <-req.done
}

// Shutdown stops accepting new requests, waits for the queue to drain, and
// returns once the worker goroutine has exited.
func (s *Scheduler) Shutdown() {
	select {
	case <-s.closing:
		return
	default:
		close(s.closing)
	}
	<-s.closed
}
