// Package profile owns the on-disk per-user layout:
//
//	<root>/<userId>/profile.json
//	<root>/<userId>/memories/<memId>.json
//
// No other component reads or writes these files. Profile writes go through
// temp+fsync+rename so a partially written profile is never visible.
package profile

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lyralab/quantumd/internal/fault"
	"github.com/lyralab/quantumd/internal/logging"
	"github.com/lyralab/quantumd/internal/types"
)

// previewLen is the context-line content preview length.
const previewLen = 100

// Store is the file-backed profile and memory store. Writes are serialised
// per user; readers always see a consistent profile file thanks to
// temp+rename.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create memory root: %w", err)
	}
	return &Store{root: root, locks: make(map[string]*sync.Mutex)}, nil
}

// userLock returns the per-user write mutex, creating it on first use.
func (s *Store) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *Store) profilePath(userID string) string {
	return filepath.Join(s.root, userID, "profile.json")
}

func (s *Store) memoriesDir(userID string) string {
	return filepath.Join(s.root, userID, "memories")
}

// GetProfile returns the stored profile, or a fresh one synthesised from
// the default template. Synthesised profiles are persisted lazily on first
// mutation.
func (s *Store) GetProfile(userID string) (*Profile, error) {
	data, err := os.ReadFile(s.profilePath(userID))
	if os.IsNotExist(err) {
		return defaultProfile(userID, time.Now()), nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.StoreFailed, "profile", err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fault.Wrap(fault.StoreFailed, "profile", fmt.Errorf("parse profile: %w", err))
	}
	return &p, nil
}

// HasProfile reports whether a profile file exists on disk.
func (s *Store) HasProfile(userID string) bool {
	_, err := os.Stat(s.profilePath(userID))
	return err == nil
}

// AppendMemory writes one immutable memory file, then appends its context
// line to the profile index. On any I/O failure the index is untouched and
// the call surfaces StoreFailed.
func (s *Store) AppendMemory(userID string, entry types.MemoryEntry) (string, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.MemoryType == "" {
		entry.MemoryType = "general"
	}
	entry.UserID = userID

	p, err := s.GetProfile(userID)
	if err != nil {
		return "", err
	}

	memID := fmt.Sprintf("mem_%d_%08d", entry.Timestamp.Unix(), contentHash(entry.Content))

	if err := os.MkdirAll(s.memoriesDir(userID), 0755); err != nil {
		return "", fault.Wrap(fault.StoreFailed, "memory", err)
	}
	memData, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", fault.Wrap(fault.StoreFailed, "memory", err)
	}
	memPath := filepath.Join(s.memoriesDir(userID), memID+".json")
	if err := os.WriteFile(memPath, memData, 0644); err != nil {
		return "", fault.Wrap(fault.StoreFailed, "memory", err)
	}

	line := contextLine(memID, entry.MemoryType, entry.Timestamp, entry.Content)
	p.MemoryContextIndex.ContextLines = append(p.MemoryContextIndex.ContextLines, line)
	p.MemoryContextIndex.TotalMemories = len(p.MemoryContextIndex.ContextLines)
	p.SystemMetadata.LastUpdated = time.Now().Format(time.RFC3339)
	p.SystemMetadata.InteractionCount++

	if err := s.writeProfile(userID, p); err != nil {
		// Roll back visibility: the orphaned memory file is harmless, but
		// the index must not reference it.
		os.Remove(memPath)
		return "", err
	}

	logging.Debug("profile", "Appended memory %s for user %s (%s)", memID, userID, entry.MemoryType)
	return memID, nil
}

// writeProfile persists the profile crash-safely: temp file, fsync, rename.
func (s *Store) writeProfile(userID string, p *Profile) error {
	dir := filepath.Join(s.root, userID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fault.Wrap(fault.StoreFailed, "profile", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fault.Wrap(fault.StoreFailed, "profile", err)
	}

	tmp, err := os.CreateTemp(dir, "profile-*.tmp")
	if err != nil {
		return fault.Wrap(fault.StoreFailed, "profile", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fault.Wrap(fault.StoreFailed, "profile", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fault.Wrap(fault.StoreFailed, "profile", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fault.Wrap(fault.StoreFailed, "profile", err)
	}
	if err := os.Rename(tmpName, s.profilePath(userID)); err != nil {
		os.Remove(tmpName)
		return fault.Wrap(fault.StoreFailed, "profile", err)
	}
	return nil
}

// ReadMemory loads one memory file. A missing or unreadable file leaves the
// index entry intact; only the content is unavailable.
func (s *Store) ReadMemory(userID, memID string) (*types.MemoryEntry, error) {
	data, err := os.ReadFile(filepath.Join(s.memoriesDir(userID), memID+".json"))
	if err != nil {
		return nil, fault.Wrap(fault.StoreFailed, "memory", err)
	}
	var entry types.MemoryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fault.Wrap(fault.StoreFailed, "memory", err)
	}
	return &entry, nil
}

// SearchContext runs a case-insensitive substring search over the context
// lines. Relevance is the occurrence count of the query within the line;
// ties break most-recent first.
func (s *Store) SearchContext(userID, query string, limit int) ([]types.ContextHit, error) {
	p, err := s.GetProfile(userID)
	if err != nil {
		return nil, err
	}
	queryLower := strings.ToLower(query)
	if queryLower == "" {
		return nil, nil
	}

	type indexed struct {
		hit types.ContextHit
		pos int
	}
	var hits []indexed
	for i, line := range p.MemoryContextIndex.ContextLines {
		lineLower := strings.ToLower(line)
		count := strings.Count(lineLower, queryLower)
		if count == 0 {
			continue
		}
		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			continue
		}
		hits = append(hits, indexed{
			hit: types.ContextHit{
				MemoryID:  parts[0],
				MemType:   parts[1],
				Timestamp: parts[2],
				Preview:   parts[3],
				Relevance: count,
			},
			pos: i,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].hit.Relevance != hits[j].hit.Relevance {
			return hits[i].hit.Relevance > hits[j].hit.Relevance
		}
		return hits[i].pos > hits[j].pos
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]types.ContextHit, len(hits))
	for i, h := range hits {
		out[i] = h.hit
	}
	return out, nil
}

// RecentContextLines returns the last k context lines, oldest first.
func (s *Store) RecentContextLines(userID string, k int) ([]string, error) {
	p, err := s.GetProfile(userID)
	if err != nil {
		return nil, err
	}
	lines := p.MemoryContextIndex.ContextLines
	if k > 0 && len(lines) > k {
		lines = lines[len(lines)-k:]
	}
	out := make([]string, len(lines))
	copy(out, lines)
	return out, nil
}

// GetSummary returns the compact memory overview for a user.
func (s *Store) GetSummary(userID string) (*Summary, error) {
	has := s.HasProfile(userID)
	p, err := s.GetProfile(userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var memTypes []string
	for _, line := range p.MemoryContextIndex.ContextLines {
		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			continue
		}
		if _, ok := seen[parts[1]]; !ok {
			seen[parts[1]] = struct{}{}
			memTypes = append(memTypes, parts[1])
		}
	}
	return &Summary{
		UserID:      userID,
		HasProfile:  has,
		MemoryCount: p.MemoryContextIndex.TotalMemories,
		MemoryTypes: memTypes,
		LastUpdated: p.SystemMetadata.LastUpdated,
	}, nil
}

// contextLine renders the bit-exact index line:
// "<memId>|<memType>|<iso8601>|<first 100 chars>...". Pipes and newlines in
// the preview are flattened so the line always splits into four fields.
func contextLine(memID, memType string, ts time.Time, content string) string {
	preview := strings.NewReplacer("|", " ", "\n", " ", "\r", " ").Replace(content)
	if len(preview) > previewLen {
		if r := []rune(preview); len(r) > previewLen {
			preview = string(r[:previewLen])
		}
	}
	return fmt.Sprintf("%s|%s|%s|%s...", memID, memType, ts.Format(time.RFC3339), preview)
}

// contentHash derives the 8-digit decimal id suffix from the memory
// content.
func contentHash(content string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(content))
	return h.Sum64() % 100000000
}
