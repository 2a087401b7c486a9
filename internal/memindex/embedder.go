package memindex

import (
	"context"
	"time"

	"github.com/lyralab/quantumd/internal/fault"
	"github.com/lyralab/quantumd/internal/inference"
	"github.com/lyralab/quantumd/internal/logging"
)

// Embedder wraps the embedding backend and degrades to the deterministic
// pseudo-vector when the backend cannot answer. Cancellation is the one
// error that propagates.
type Embedder struct {
	client *inference.Client
}

// NewEmbedder wraps an embedding-stage client.
func NewEmbedder(client *inference.Client) *Embedder {
	return &Embedder{client: client}
}

// Embed returns the real embedding, or the fallback vector with
// degraded=true when the backend times out, is unreachable, or answers
// garbage.
func (e *Embedder) Embed(ctx context.Context, deadline time.Time, text string) (vec []float64, degraded bool, err error) {
	res, err := e.client.Embed(ctx, deadline, text)
	if err == nil {
		return res.Vector, false, nil
	}
	switch fault.KindOf(err) {
	case fault.Cancelled:
		return nil, false, err
	default:
		logging.Info("memindex", "Embedding backend failed (%v), using fallback vector", err)
		return FallbackEmbedding(text), true, nil
	}
}
