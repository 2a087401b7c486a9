package memindex

import (
	"crypto/sha256"
	"sort"
	"strings"

	prose "github.com/tsawler/prose/v3"

	"github.com/lyralab/quantumd/internal/logging"
	"github.com/lyralab/quantumd/internal/types"
)

// fallbackDims is the length of the deterministic pseudo-embedding.
const fallbackDims = 16

// fallbackScoreCap keeps keyword scores below any plausible real
// similarity so degraded results are distinguishable.
const fallbackScoreCap = 0.95

// fallbackRecentWindow bounds how many recent entries the keyword search
// scans per user.
const fallbackRecentWindow = 200

// FallbackEmbedding derives a deterministic pseudo-vector from the text so
// the pipeline can proceed when the embedding backend is down. The vectors
// carry no semantic signal and are never fed to TopK.
func FallbackEmbedding(text string) []float64 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float64, fallbackDims)
	for i := 0; i < fallbackDims; i++ {
		vec[i] = float64(sum[i]) / 255.0
	}
	return vec
}

// KeywordTopK is the degraded retrieval path: token overlap between the
// query and each of the user's recent entries, scored by overlap fraction
// and capped below real similarity scores.
func (idx *Index) KeywordTopK(userID, query string, k int) []types.MemoryHit {
	queryTokens := keywords(query)
	if len(queryTokens) == 0 {
		return nil
	}

	var hits []types.MemoryHit
	for _, e := range idx.Recent(userID, fallbackRecentWindow) {
		entryTokens := keywords(e.Content)
		if len(entryTokens) == 0 {
			continue
		}
		overlap := 0
		for tok := range queryTokens {
			if _, ok := entryTokens[tok]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		score := float64(overlap) / float64(len(queryTokens))
		if score > fallbackScoreCap {
			score = fallbackScoreCap
		}
		hits = append(hits, types.MemoryHit{
			MemoryID:  e.MemoryID,
			Score:     score,
			Content:   e.Content,
			Timestamp: e.Timestamp,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Timestamp.After(hits[j].Timestamp)
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// keywords extracts the lowercased word tokens of the text. Tokenisation
// goes through prose so contractions and punctuation are handled the same
// way everywhere; if document creation fails we fall back to field
// splitting.
func keywords(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false))
	if err != nil {
		logging.Debug("memindex", "Tokenizer error, splitting on whitespace: %v", err)
		for _, f := range strings.Fields(text) {
			tokens[strings.ToLower(f)] = struct{}{}
		}
		return tokens
	}
	for _, tok := range doc.Tokens() {
		word := strings.ToLower(tok.Text)
		if !isWord(word) {
			continue
		}
		tokens[word] = struct{}{}
	}
	return tokens
}

func isWord(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return len(s) > 1
}
