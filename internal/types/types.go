package types

import (
	"fmt"
	"time"
)

// Request is one inbound user message working its way through the core.
// The queue owns it while enqueued, the dispatcher while active.
type Request struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Text     string    `json:"text"`
	Channel  string    `json:"channel"`  // reply channel requested by ingress
	Priority int       `json:"priority"` // 0..9, 9 highest
	Arrived  time.Time `json:"arrived"`
	Deadline time.Time `json:"deadline"` // absolute hard ceiling for the dispatch
}

// NewRequest builds a request with the queue id format the history store
// and status surface key on.
func NewRequest(userID, text, channel string, priority int, deadline time.Duration) *Request {
	now := time.Now()
	return &Request{
		ID:       fmt.Sprintf("ai_%d_%s", now.UnixMilli(), userID),
		UserID:   userID,
		Text:     text,
		Channel:  channel,
		Priority: priority,
		Arrived:  now,
		Deadline: now.Add(deadline),
	}
}

// Reply is the synthesised response for one request, with the dispatch
// metadata the operator surfaces (never shown to the user).
type Reply struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Channel   string `json:"channel"`
	Content   string `json:"content"`

	// Degraded means one or more sub-calls fell back but a reply was
	// still produced. Fallback marks the embedding hash fallback.
	Degraded bool `json:"degraded"`
	Fallback bool `json:"fallback"`

	Personalization float64 `json:"personalization"`

	// CPUUtilization is the host CPU percentage sampled when the wave
	// observation started.
	CPUUtilization float64 `json:"cpu_utilization"`

	ParticleTime time.Duration `json:"particle_time"`
	WaveTime     time.Duration `json:"wave_time"`
	EmbedTime    time.Duration `json:"embed_time"`
	TotalTime    time.Duration `json:"total_time"`
}

// MemoryEntry is one stored memory. Written once, never modified.
type MemoryEntry struct {
	UserID     string             `json:"user_id"`
	Content    string             `json:"content"`
	MemoryType string             `json:"memory_type"`
	Timestamp  time.Time          `json:"timestamp"`
	Emotional  map[string]float64 `json:"emotional_weight,omitempty"`
	Metadata   map[string]any     `json:"metadata,omitempty"`
}

// ContextHit is one result from the context-line substring search.
type ContextHit struct {
	MemoryID  string `json:"memory_id"`
	MemType   string `json:"memory_type"`
	Timestamp string `json:"timestamp"`
	Preview   string `json:"content_preview"`
	Relevance int    `json:"relevance_score"`
}

// MemoryHit is one nearest-neighbour result from the embedding index.
type MemoryHit struct {
	MemoryID  string    `json:"memory_id"`
	Score     float64   `json:"score"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// QueueState is a user's position in the request queue.
type QueueState string

const (
	QueueProcessing QueueState = "processing"
	QueueWaiting    QueueState = "queued"
	QueueNone       QueueState = "none"
)

// UserStatus reports where a user's request sits in the queue.
type UserStatus struct {
	State      QueueState `json:"state"`
	RequestID  string     `json:"request_id,omitempty"`
	Position   int        `json:"position"`
	ETASeconds int        `json:"eta_seconds"`
}
