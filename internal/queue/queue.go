// Package queue is the bounded admission queue in front of the dispatcher.
// Ten priority bands, FIFO within a band, with a periodic low-band pick so
// bulk traffic cannot starve forever.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/lyralab/quantumd/internal/fault"
	"github.com/lyralab/quantumd/internal/logging"
	"github.com/lyralab/quantumd/internal/types"
)

const (
	numBands = 10

	// Every starvationStride-th dispatch serves the lowest non-empty band
	// instead of the highest.
	starvationStride = 4

	// EWMA seed and weight for per-request processing time.
	initialEstimateSeconds = 10.0
	ewmaAlpha              = 0.2
)

// Handler processes one admitted request. The context is cancelled when the
// queue aborts in-flight work during shutdown.
type Handler func(ctx context.Context, req *types.Request)

// Queue admits requests up to a hard cap and feeds them to a fixed pool of
// workers, highest band first.
type Queue struct {
	mu       sync.Mutex
	bands    [numBands][]*types.Request
	active   map[string]*types.Request // request ID -> in-flight request
	queued   int
	stopped  bool
	draining bool

	dispatches int     // served so far, drives the starvation stride
	ewma       float64 // smoothed processing seconds

	maxSize int
	workers int
	handler Handler

	notifyCh chan struct{}
	stopCh   chan struct{}
	abort    context.CancelFunc
	baseCtx  context.Context
	wg       sync.WaitGroup
}

// New creates a queue with the given capacity and worker count. Call Start
// before enqueueing.
func New(maxSize, workers int, handler Handler) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		active:   make(map[string]*types.Request),
		maxSize:  maxSize,
		workers:  workers,
		handler:  handler,
		ewma:     initialEstimateSeconds,
		notifyCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		baseCtx:  ctx,
		abort:    cancel,
	}
}

// Start launches the worker pool.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	logging.Info("queue", "Started %d workers (capacity %d)", q.workers, q.maxSize)
}

// Enqueue admits a request and returns its queue ID, 1-based position, and
// estimated wait in seconds. A full queue rejects with an overloaded fault.
func (q *Queue) Enqueue(req *types.Request) (queueID string, position int, etaSeconds float64, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return "", 0, 0, fault.New(fault.Overloaded, "queue", "queue is shut down")
	}
	if q.queued >= q.maxSize {
		return "", 0, 0, fault.New(fault.Overloaded, "queue", "queue full (%d requests)", q.maxSize)
	}

	band := req.Priority
	if band < 0 {
		band = 0
	}
	if band >= numBands {
		band = numBands - 1
	}
	req.Priority = band

	q.bands[band] = append(q.bands[band], req)
	q.queued++

	position = q.positionLocked(req)
	etaSeconds = float64(position) * q.ewma

	select {
	case q.notifyCh <- struct{}{}:
	default:
	}

	logging.Debug("queue", "Enqueued %s at band %d position %d (eta %.1fs)", req.ID, band, position, etaSeconds)
	return req.ID, position, etaSeconds, nil
}

// positionLocked estimates how many queued requests will be served before
// req: everything in higher bands plus everything ahead of it in its own
// band, plus one for itself. The stride pick makes this an estimate, not a
// promise.
func (q *Queue) positionLocked(req *types.Request) int {
	ahead := 0
	for band := numBands - 1; band > req.Priority; band-- {
		ahead += len(q.bands[band])
	}
	for _, r := range q.bands[req.Priority] {
		if r.ID == req.ID {
			break
		}
		ahead++
	}
	return ahead + 1
}

// popLocked removes the next request per dispatch policy, or nil.
func (q *Queue) popLocked() *types.Request {
	if q.queued == 0 {
		return nil
	}
	q.dispatches++

	fromLowest := q.dispatches%starvationStride == 0
	if fromLowest {
		for band := 0; band < numBands; band++ {
			if len(q.bands[band]) > 0 {
				return q.removeHeadLocked(band)
			}
		}
	}
	for band := numBands - 1; band >= 0; band-- {
		if len(q.bands[band]) > 0 {
			return q.removeHeadLocked(band)
		}
	}
	return nil
}

func (q *Queue) removeHeadLocked(band int) *types.Request {
	req := q.bands[band][0]
	q.bands[band] = q.bands[band][1:]
	q.queued--
	return req
}

// next pops the next request and marks it active. When requests remain it
// re-arms the notify channel, so a signal consumed by a busy worker is not
// lost on an idle one.
func (q *Queue) next() *types.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	req := q.popLocked()
	if req == nil {
		return nil
	}
	q.active[req.ID] = req
	if q.queued > 0 {
		select {
		case q.notifyCh <- struct{}{}:
		default:
		}
	}
	return req
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for {
		req := q.next()
		q.mu.Lock()
		stopped := q.stopped && !q.draining
		q.mu.Unlock()

		if req == nil {
			if stopped {
				return
			}
			select {
			case <-q.notifyCh:
			case <-q.stopCh:
				// Drain whatever is left, then exit.
				q.mu.Lock()
				empty := q.queued == 0
				q.mu.Unlock()
				if empty {
					return
				}
			}
			continue
		}

		start := time.Now()
		q.handler(q.baseCtx, req)
		elapsed := time.Since(start).Seconds()

		q.mu.Lock()
		delete(q.active, req.ID)
		q.ewma = ewmaAlpha*elapsed + (1-ewmaAlpha)*q.ewma
		q.mu.Unlock()
	}
}

// Cancel removes a still-queued request. Active requests are out of the
// queue's hands and return false.
func (q *Queue) Cancel(queueID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for band := 0; band < numBands; band++ {
		for i, r := range q.bands[band] {
			if r.ID == queueID {
				q.bands[band] = append(q.bands[band][:i], q.bands[band][i+1:]...)
				q.queued--
				logging.Debug("queue", "Cancelled queued request %s", queueID)
				return true
			}
		}
	}
	return false
}

// Status reports where the user's most recent request stands.
func (q *Queue) Status(userID string) types.UserStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, r := range q.active {
		if r.UserID == userID {
			return types.UserStatus{State: types.QueueProcessing, RequestID: id}
		}
	}
	for band := numBands - 1; band >= 0; band-- {
		for _, r := range q.bands[band] {
			if r.UserID == userID {
				pos := q.positionLocked(r)
				return types.UserStatus{
					State:      types.QueueWaiting,
					RequestID:  r.ID,
					Position:   pos,
					ETASeconds: int(float64(pos)*q.ewma + 0.5),
				}
			}
		}
	}
	return types.UserStatus{State: types.QueueNone}
}

// Depth returns queued and active counts.
func (q *Queue) Depth() (queued, active int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queued, len(q.active)
}

// EstimateSeconds returns the current smoothed per-request processing time.
func (q *Queue) EstimateSeconds() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ewma
}

// Stop shuts the queue down. New enqueues are rejected immediately. Workers
// keep draining queued requests until drainPeriod elapses, after which
// in-flight handlers are aborted via their context.
func (q *Queue) Stop(drainPeriod time.Duration) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.draining = true
	q.mu.Unlock()

	close(q.stopCh)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainPeriod):
		logging.Info("queue", "Drain period elapsed, aborting in-flight requests")
		q.mu.Lock()
		q.draining = false
		for band := range q.bands {
			q.bands[band] = nil
		}
		q.queued = 0
		q.mu.Unlock()
		q.abort()
		<-done
	}
	q.abort()
	logging.Info("queue", "Stopped")
}
