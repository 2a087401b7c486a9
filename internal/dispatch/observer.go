// Package dispatch is the per-request orchestrator. For each admitted
// request it fans out to the particle and wave backends in parallel, runs
// the embedding retrieval stage, synthesises one reply, and appends the
// exchange to the user's memory.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/lyralab/quantumd/internal/fault"
	"github.com/lyralab/quantumd/internal/history"
	"github.com/lyralab/quantumd/internal/inference"
	"github.com/lyralab/quantumd/internal/logging"
	"github.com/lyralab/quantumd/internal/memindex"
	"github.com/lyralab/quantumd/internal/persona"
	"github.com/lyralab/quantumd/internal/profile"
	"github.com/lyralab/quantumd/internal/types"
)

// particleFallbackText substitutes for a failed particle call.
const particleFallbackText = "I understand your request and I'm here to help."

// embeddingKeyParticleChars bounds the particle contribution to the
// embedding search key.
const embeddingKeyParticleChars = 200

// State is the dispatch lifecycle position for one request.
type State string

const (
	StateActive     State = "active"
	StateFanout     State = "fanout"
	StateAwaitAB    State = "await_ab"
	StateEmbedding  State = "embedding"
	StateSynthesise State = "synthesise"
	StateAppending  State = "appending"
	StateDone       State = "done"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Config carries the dispatch stage timeouts and retrieval depths.
type Config struct {
	ParticleTimeout time.Duration
	WaveTimeout     time.Duration
	EmbedTimeout    time.Duration
	GracePeriod     time.Duration
	MemoryTopK      int
	ContextLines    int // recent context lines fed into the particle prompt
}

// Deps bundles the subsystems the observer drives.
type Deps struct {
	Profiles *profile.Store
	Index    *memindex.Index
	Embedder *memindex.Embedder
	Particle *inference.Client
	Wave     *inference.Client
	History  *history.DB // optional
}

// Observer orchestrates dispatches. Safe for concurrent use; each Dispatch
// call owns its request.
type Observer struct {
	cfg  Config
	deps Deps

	mu     sync.Mutex
	active map[string]*activeDispatch
}

type activeDispatch struct {
	state  State
	cancel context.CancelFunc
}

// NewObserver creates an observer over the given subsystems.
func NewObserver(cfg Config, deps Deps) *Observer {
	return &Observer{
		cfg:    cfg,
		deps:   deps,
		active: make(map[string]*activeDispatch),
	}
}

type particleResult struct {
	text       string
	confidence float64
	elapsed    time.Duration
	degraded   bool
	err        error // set only on cancellation
}

type waveResult struct {
	summary    string
	emotions   map[string]float64
	cpuPercent float64
	elapsed    time.Duration
	degraded   bool
	err        error // set only on cancellation
}

// Dispatch runs one request through fan-out, retrieval, synthesis, and the
// memory append. It returns the reply, or a fault on cancellation or when
// nothing can be produced before the request deadline.
func (o *Observer) Dispatch(ctx context.Context, req *types.Request) (*types.Reply, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ad := &activeDispatch{state: StateActive, cancel: cancel}
	o.mu.Lock()
	o.active[req.ID] = ad
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.active, req.ID)
		o.mu.Unlock()
	}()

	logging.Info("dispatch", "Observing %s for user %s", req.ID, req.UserID)

	emotion, activation := persona.Score(req.Text)

	prof, err := o.deps.Profiles.GetProfile(req.UserID)
	if err != nil {
		logging.Error("dispatch", "Profile load failed for %s: %v", req.UserID, err)
		prof = &profile.Profile{UserID: req.UserID, Name: "Unknown", Role: "User"}
	}
	contextLines, err := o.deps.Profiles.RecentContextLines(req.UserID, o.cfg.ContextLines)
	if err != nil {
		contextLines = nil
	}

	o.setState(req.ID, StateFanout)
	pCh := make(chan particleResult, 1)
	wCh := make(chan waveResult, 1)
	go o.observeParticle(ctx, req, prof, contextLines, emotion, activation, pCh)
	go o.observeWave(ctx, req, wCh)

	o.setState(req.ID, StateAwaitAB)
	pres := <-pCh
	wres := <-wCh

	if pres.err != nil || wres.err != nil || ctx.Err() != nil {
		o.finish(req, StateCancelled, nil, start)
		return nil, fault.New(fault.Cancelled, "dispatch", "request %s cancelled", req.ID)
	}

	degraded := pres.degraded || wres.degraded
	if pres.degraded && wres.degraded && !time.Now().Before(req.Deadline) {
		o.finish(req, StateFailed, nil, start)
		return nil, fault.New(fault.Timeout, "dispatch", "request %s exhausted its deadline", req.ID)
	}

	o.setState(req.ID, StateEmbedding)
	embedStart := time.Now()
	key := embeddingKey(pres.text, wres.summary)
	vec, fallback, err := o.deps.Embedder.Embed(ctx, earliest(embedStart.Add(o.cfg.EmbedTimeout), req.Deadline), key)
	if err != nil {
		o.finish(req, StateCancelled, nil, start)
		return nil, fault.New(fault.Cancelled, "dispatch", "request %s cancelled", req.ID)
	}
	embedTime := time.Since(embedStart)

	var hits []types.MemoryHit
	if fallback {
		degraded = true
		hits = o.deps.Index.KeywordTopK(req.UserID, req.Text, o.cfg.MemoryTopK)
	} else {
		hits = o.deps.Index.TopK(req.UserID, vec, o.cfg.MemoryTopK)
	}
	memoryContext := renderMemoryContext(hits)

	o.setState(req.ID, StateSynthesise)
	var content string
	if time.Now().Before(req.Deadline) {
		content = synthesize(pres.text, wres.summary, wres.emotions, len(hits) > 0, memoryContext)
	} else {
		// Out of time for the full fusion: deliver the cleaned particle
		// text alone.
		content = cleanParticleText(pres.text)
		degraded = true
	}
	personalization := personalizationScore(pres.confidence, len(wres.emotions), pres.elapsed, wres.elapsed)

	o.setState(req.ID, StateAppending)
	memContent := fmt.Sprintf("User: %s | Lyra: %s", req.Text, content)
	memID, err := o.deps.Profiles.AppendMemory(req.UserID, types.MemoryEntry{
		Content:    memContent,
		MemoryType: "conversation",
		Emotional:  emotion.Weights.Map(),
		Metadata: map[string]any{
			"request_id":       req.ID,
			"active_fragments": activation.IDs(),
			"particle_seconds": pres.elapsed.Seconds(),
			"wave_seconds":     wres.elapsed.Seconds(),
		},
	})
	if err != nil {
		// The reply still goes out; only the memory write is lost.
		logging.Error("dispatch", "Memory append failed for %s: %v", req.UserID, err)
		degraded = true
	} else if err := o.deps.Index.Add(memindex.Entry{
		MemoryID:  memID,
		UserID:    req.UserID,
		Content:   memContent,
		Timestamp: time.Now(),
		Vector:    vec,
	}); err != nil {
		logging.Error("dispatch", "Index update failed for %s: %v", memID, err)
		degraded = true
	}

	reply := &types.Reply{
		RequestID:       req.ID,
		UserID:          req.UserID,
		Channel:         req.Channel,
		Content:         content,
		Degraded:        degraded,
		Fallback:        fallback,
		Personalization: personalization,
		CPUUtilization:  wres.cpuPercent,
		ParticleTime:    pres.elapsed,
		WaveTime:        wres.elapsed,
		EmbedTime:       embedTime,
		TotalTime:       time.Since(start),
	}
	o.finish(req, StateDone, reply, start)
	logging.Info("dispatch", "Collapsed %s: %d chars in %.2fs (degraded=%v)",
		req.ID, len(content), reply.TotalTime.Seconds(), degraded)
	return reply, nil
}

func (o *Observer) observeParticle(ctx context.Context, req *types.Request, prof *profile.Profile,
	contextLines []string, emotion persona.EmotionState, activation persona.FragmentActivation,
	ch chan<- particleResult) {

	start := time.Now()
	deadline := earliest(start.Add(o.cfg.ParticleTimeout), req.Deadline)
	prompt := buildParticlePrompt(req, prof, contextLines, emotion, activation)

	res, err := o.deps.Particle.Chat(ctx, deadline, particleSystemPrompt, prompt, inference.GenParams{
		Temperature: 0.8,
		TopP:        0.95,
		MaxTokens:   1500,
	})
	if err != nil {
		if fault.KindOf(err) == fault.Cancelled {
			ch <- particleResult{err: err}
			return
		}
		logging.Error("dispatch", "Particle position failed: %v", err)
		ch <- particleResult{
			text:       particleFallbackText,
			confidence: 0.5,
			elapsed:    time.Since(start),
			degraded:   true,
		}
		return
	}
	logging.Debug("dispatch", "Particle position observed: %d chars, %.2fs", len(res.Text), res.Latency.Seconds())
	ch <- particleResult{text: res.Text, confidence: 0.85, elapsed: res.Latency}
}

func (o *Observer) observeWave(ctx context.Context, req *types.Request, ch chan<- waveResult) {
	start := time.Now()
	deadline := earliest(start.Add(o.cfg.WaveTimeout), req.Deadline)

	cpuPercent := 0.0
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		cpuPercent = pcts[0]
	}

	res, err := o.deps.Wave.Generate(ctx, deadline, buildWavePrompt(req), inference.GenParams{
		Temperature: 0.7,
		TopP:        0.9,
	})
	if err != nil {
		if fault.KindOf(err) == fault.Cancelled {
			ch <- waveResult{err: err}
			return
		}
		logging.Error("dispatch", "Wave position failed: %v", err)
		ch <- waveResult{
			summary:    "",
			emotions:   map[string]float64{"neutral": 1.0},
			cpuPercent: cpuPercent,
			elapsed:    time.Since(start),
			degraded:   true,
		}
		return
	}
	summary, emotions := parseWaveResponse(res.Text)
	logging.Debug("dispatch", "Wave position observed: %d chars, %.2fs (cpu %.1f%%)",
		len(summary), res.Latency.Seconds(), cpuPercent)
	ch <- waveResult{summary: summary, emotions: emotions, cpuPercent: cpuPercent, elapsed: res.Latency}
}

// embeddingKey builds the retrieval key from the particle output's head and
// the wave summary.
func embeddingKey(particleText, waveSummary string) string {
	return truncateRunes(particleText, embeddingKeyParticleChars) + " " + waveSummary
}

// Cancel signals an in-flight dispatch and waits up to the grace period for
// its sub-calls to cease. Returns false when the request is not in flight.
func (o *Observer) Cancel(requestID string) bool {
	o.mu.Lock()
	ad, ok := o.active[requestID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	ad.cancel()

	deadline := time.Now().Add(o.cfg.GracePeriod)
	for time.Now().Before(deadline) {
		o.mu.Lock()
		_, still := o.active[requestID]
		o.mu.Unlock()
		if !still {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return true
}

// StateOf reports the lifecycle state of an in-flight request, or false.
func (o *Observer) StateOf(requestID string) (State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ad, ok := o.active[requestID]
	if !ok {
		return "", false
	}
	return ad.state, true
}

// ActiveCount returns the number of dispatches currently in flight.
func (o *Observer) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

func (o *Observer) setState(requestID string, s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ad, ok := o.active[requestID]; ok {
		ad.state = s
	}
}

// finish marks the terminal state and records the dispatch in the history
// store when one is wired.
func (o *Observer) finish(req *types.Request, s State, reply *types.Reply, start time.Time) {
	o.setState(req.ID, s)
	if o.deps.History == nil {
		return
	}
	rec := history.Record{
		RequestID:    req.ID,
		UserID:       req.UserID,
		Channel:      req.Channel,
		State:        string(s),
		TotalSeconds: time.Since(start).Seconds(),
	}
	if reply != nil {
		rec.Degraded = reply.Degraded
		rec.Fallback = reply.Fallback
		rec.Personalization = reply.Personalization
		rec.CPUUtilization = reply.CPUUtilization
		rec.ParticleSeconds = reply.ParticleTime.Seconds()
		rec.WaveSeconds = reply.WaveTime.Seconds()
		rec.EmbedSeconds = reply.EmbedTime.Seconds()
	}
	if err := o.deps.History.Append(rec); err != nil {
		logging.Error("dispatch", "History record failed for %s: %v", req.ID, err)
	}
}

func earliest(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
