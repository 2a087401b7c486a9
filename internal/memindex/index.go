// Package memindex is the vector index over stored memories. Vectors are
// L2-normalised on insert; similarity is the inner product. The index lives
// in memory and persists as a snapshot plus an append-only sidecar log under
// <root>/_index/.
package memindex

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/lyralab/quantumd/internal/logging"
	"github.com/lyralab/quantumd/internal/types"
)

const (
	snapshotFile = "embeddings.snapshot"
	logFile      = "embeddings.log"
)

// Entry is one indexed memory vector with the content snippet topK returns.
type Entry struct {
	MemoryID  string    `json:"memory_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Vector    []float64 `json:"vector"`
}

// Index is the in-memory vector index. Single writer, many readers.
type Index struct {
	mu      sync.RWMutex
	entries []Entry

	dir       string
	threshold float64 // results below this similarity are dropped
}

// Open loads the snapshot, replays the sidecar log, and returns the index.
func Open(root string, threshold float64) (*Index, error) {
	dir := filepath.Join(root, "_index")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	idx := &Index{dir: dir, threshold: threshold}

	if data, err := os.ReadFile(filepath.Join(dir, snapshotFile)); err == nil {
		if err := json.Unmarshal(data, &idx.entries); err != nil {
			return nil, fmt.Errorf("parse embeddings snapshot: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read embeddings snapshot: %w", err)
	}

	if err := idx.replayLog(); err != nil {
		return nil, err
	}
	logging.Info("memindex", "Loaded %d embeddings", len(idx.entries))
	return idx, nil
}

// replayLog applies sidecar entries written since the last snapshot.
func (idx *Index) replayLog() error {
	f, err := os.Open(filepath.Join(idx.dir, logFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open embeddings log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			// A torn tail write from a crash; everything before it is good.
			logging.Error("memindex", "Skipping corrupt log line: %v", err)
			break
		}
		idx.entries = append(idx.entries, e)
	}
	return scanner.Err()
}

// Add normalises the vector and appends the entry to the index and the
// sidecar log. The entry becomes visible to readers atomically.
func (idx *Index) Add(entry Entry) error {
	entry.Vector = normalize(entry.Vector)

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal index entry: %w", err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(idx.dir, logFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open embeddings log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append embeddings log: %w", err)
	}

	idx.entries = append(idx.entries, entry)
	return nil
}

// TopK returns up to k entries for the user by inner-product similarity,
// dropping results below the similarity threshold.
func (idx *Index) TopK(userID string, vector []float64, k int) []types.MemoryHit {
	query := normalize(vector)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var hits []types.MemoryHit
	for _, e := range idx.entries {
		if e.UserID != userID || len(e.Vector) != len(query) {
			continue
		}
		score := dot(query, e.Vector)
		if score < idx.threshold {
			continue
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

// Recent returns the newest n entries for a user, newest first. Used by the
// fallback keyword search.
func (idx *Index) Recent(userID string, n int) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []Entry
	for i := len(idx.entries) - 1; i >= 0 && (n <= 0 || len(out) < n); i-- {
		if idx.entries[i].UserID == userID {
			out = append(out, idx.entries[i])
		}
	}
	return out
}

// Count returns the number of indexed entries.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Snapshot folds the sidecar log into the snapshot file and truncates the
// log. Called periodically and on shutdown.
func (idx *Index) Snapshot() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	data, err := json.Marshal(idx.entries)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := filepath.Join(idx.dir, snapshotFile+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(idx.dir, snapshotFile)); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	if err := os.Remove(filepath.Join(idx.dir, logFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("truncate log: %w", err)
	}
	return nil
}

func normalize(v []float64) []float64 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	var total float64
	for i := range a {
		total += a[i] * b[i]
	}
	return total
}
