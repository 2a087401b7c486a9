// Package supervisor wires the subsystems together: it starts them in
// dependency order, feeds submitted requests through the queue into the
// dispatcher, and owns the drain-then-abort shutdown sequence.
package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/lyralab/quantumd/internal/config"
	"github.com/lyralab/quantumd/internal/dispatch"
	"github.com/lyralab/quantumd/internal/fault"
	"github.com/lyralab/quantumd/internal/history"
	"github.com/lyralab/quantumd/internal/inference"
	"github.com/lyralab/quantumd/internal/logging"
	"github.com/lyralab/quantumd/internal/memindex"
	"github.com/lyralab/quantumd/internal/profile"
	"github.com/lyralab/quantumd/internal/queue"
	"github.com/lyralab/quantumd/internal/types"
)

// Callbacks are invoked from worker goroutines as dispatches reach a
// terminal state. Either may be nil.
type Callbacks struct {
	OnReply   func(*types.Reply)
	OnFailure func(*types.Request, error)
}

// Supervisor owns the subsystem lifecycle. Start is idempotent; Shutdown
// drains before aborting.
type Supervisor struct {
	cfg       *config.Config
	callbacks Callbacks

	mu      sync.Mutex
	started bool
	stopped bool

	profiles *profile.Store
	index    *memindex.Index
	observer *dispatch.Observer
	queue    *queue.Queue
	history  *history.DB
}

// New creates an unstarted supervisor.
func New(cfg *config.Config, callbacks Callbacks) *Supervisor {
	return &Supervisor{cfg: cfg, callbacks: callbacks}
}

// Start brings the subsystems up in dependency order: storage first, then
// the dispatcher, then the queue workers. A second call is a no-op.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		logging.Info("supervisor", "Already started, ignoring")
		return nil
	}

	hist, err := history.Open(s.cfg.StatePath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}

	profiles, err := profile.NewStore(s.cfg.StatePath)
	if err != nil {
		hist.Close()
		return fmt.Errorf("open profile store: %w", err)
	}

	index, err := memindex.Open(s.cfg.StatePath, s.cfg.Memory.SimilarityThreshold)
	if err != nil {
		hist.Close()
		return fmt.Errorf("open embedding index: %w", err)
	}

	observer := dispatch.NewObserver(
		dispatch.Config{
			ParticleTimeout: s.cfg.Dispatch.ParticleTimeout.Duration(),
			WaveTimeout:     s.cfg.Dispatch.WaveTimeout.Duration(),
			EmbedTimeout:    s.cfg.Dispatch.EmbedTimeout.Duration(),
			GracePeriod:     s.cfg.Dispatch.GracePeriod.Duration(),
			MemoryTopK:      s.cfg.Synth.MemoryTopK,
			ContextLines:    s.cfg.Profile.RecentContextLines,
		},
		dispatch.Deps{
			Profiles: profiles,
			Index:    index,
			Embedder: memindex.NewEmbedder(inference.New("embedding", s.cfg.Endpoints.Embedding)),
			Particle: inference.New("particle", s.cfg.Endpoints.Generative),
			Wave:     inference.New("wave", s.cfg.Endpoints.Contextual),
			History:  hist,
		},
	)

	q := queue.New(s.cfg.Queue.MaxSize, s.cfg.Queue.Workers, func(ctx context.Context, req *types.Request) {
		reply, err := observer.Dispatch(ctx, req)
		if err != nil {
			logging.Info("supervisor", "Request %s terminal without reply: %v", req.ID, err)
			if s.callbacks.OnFailure != nil {
				s.callbacks.OnFailure(req, err)
			}
			return
		}
		if s.callbacks.OnReply != nil {
			s.callbacks.OnReply(reply)
		}
	})

	s.history = hist
	s.profiles = profiles
	s.index = index
	s.observer = observer
	s.queue = q

	q.Start()
	s.started = true
	logging.Info("supervisor", "Dispatch core started")
	return nil
}

// Submit enqueues a user message and returns its queue id, position, and
// wait estimate.
func (s *Supervisor) Submit(userID, text, channel string, priority int) (queueID string, position int, etaSeconds float64, err error) {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return "", 0, 0, fault.New(fault.Overloaded, "supervisor", "dispatch core is not accepting requests")
	}
	q := s.queue
	deadline := s.cfg.Dispatch.RequestDeadline.Duration()
	s.mu.Unlock()

	req := types.NewRequest(userID, text, channel, priority, deadline)
	return q.Enqueue(req)
}

// Status reports where a user's request stands.
func (s *Supervisor) Status(userID string) types.UserStatus {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return types.UserStatus{State: types.QueueNone}
	}
	return q.Status(userID)
}

// Cancel aborts a request: removed from the queue if still waiting,
// signalled for cooperative cancellation if already dispatching.
func (s *Supervisor) Cancel(queueID string) bool {
	s.mu.Lock()
	q, o := s.queue, s.observer
	s.mu.Unlock()
	if q == nil {
		return false
	}
	if q.Cancel(queueID) {
		return true
	}
	return o.Cancel(queueID)
}

// Profiles exposes the profile store for read-side surfaces.
func (s *Supervisor) Profiles() *profile.Store {
	return s.profiles
}

// History exposes the dispatch history store.
func (s *Supervisor) History() *history.DB {
	return s.history
}

// QueueDepth returns queued and active request counts.
func (s *Supervisor) QueueDepth() (queued, active int) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return 0, 0
	}
	return q.Depth()
}

// Shutdown rejects new submissions, drains the queue for the configured
// drain period, aborts whatever is still in flight, and flushes state.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	q, index, hist := s.queue, s.index, s.history
	s.mu.Unlock()

	logging.Info("supervisor", "Shutting down, draining for %s", s.cfg.Shutdown.DrainPeriod.Duration())
	q.Stop(s.cfg.Shutdown.DrainPeriod.Duration())

	if err := index.Snapshot(); err != nil {
		logging.Error("supervisor", "Index snapshot failed: %v", err)
	}
	if err := hist.Close(); err != nil {
		logging.Error("supervisor", "History close failed: %v", err)
	}
	logging.Info("supervisor", "Shutdown complete")
}
